package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// sessionFinisher runs the slow half of termination: video upload, then transcript
// persistence. Both are best-effort.
type sessionFinisher struct {
	video  *VideoCapture
	store  ports.TranscriptStore
	logger zerolog.Logger
}

func newSessionFinisher(video *VideoCapture, store ports.TranscriptStore, logger zerolog.Logger) sessionFinisher {
	return sessionFinisher{video: video, store: store, logger: logger}
}

func (f sessionFinisher) Settle(ctx context.Context, cfg domain.SessionConfig, outcome domain.Outcome) domain.Outcome {
	if !cfg.IsEvaluation() {
		return outcome
	}

	if f.video != nil {
		err := f.video.StopAndUpload(ctx, cfg.AccessKey)
		switch {
		case err == nil:
			outcome.VideoUploaded = true
		case errors.Is(err, ErrVideoNotRecording):
			outcome.VideoError = "video was not recorded"
		default:
			outcome.VideoError = err.Error()
		}
	}

	if f.store != nil {
		if err := f.store.SubmitInterview(ctx, cfg.AccessKey, outcome.Transcript); err != nil {
			f.logger.Warn().Err(err).Int("turns", len(outcome.Transcript)).Msg("failed to persist transcript")
			outcome.PersistError = err.Error()
		} else {
			outcome.TranscriptPersisted = true
		}
	}
	return outcome
}
