package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

var (
	ErrVideoNotRecording = errors.New("video is not recording")
	ErrVideoClosed       = errors.New("video capture already finished")
)

// VideoCapture records the whole session and uploads it once at the end.
type VideoCapture struct {
	recorder ports.VideoRecorder
	uploader ports.VideoUploader
	logger   zerolog.Logger

	mu        sync.Mutex
	recording bool
	closed    bool
}

func NewVideoCapture(recorder ports.VideoRecorder, uploader ports.VideoUploader, logger zerolog.Logger) *VideoCapture {
	return &VideoCapture{
		recorder: recorder,
		uploader: uploader,
		logger:   logger.With().Str("component", "video_capture").Logger(),
	}
}

// Start begins recording. It fails once StopAndUpload has run so a late start cannot
// outlive the session.
func (v *VideoCapture) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrVideoClosed
	}
	if v.recording {
		return nil
	}
	if err := v.recorder.Start(ctx); err != nil {
		return err
	}
	v.recording = true
	return nil
}

// StopAndUpload stops recording and uploads the full payload under key. It returns once the
// upload attempt has completed.
func (v *VideoCapture) StopAndUpload(ctx context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if !v.recording {
		return ErrVideoNotRecording
	}
	v.recording = false

	payload, err := v.recorder.Stop()
	if err != nil {
		v.logger.Warn().Err(err).Msg("failed to stop video recording")
		return err
	}
	if len(payload.Data) == 0 {
		err := domain.NewError(domain.ErrorKindEmptyResult, "video recording is empty", nil)
		v.logger.Warn().Err(err).Msg("nothing to upload")
		return err
	}
	if err := v.uploader.UploadVideo(ctx, key, payload); err != nil {
		v.logger.Warn().Err(err).Int("bytes", len(payload.Data)).Msg("video upload failed")
		return err
	}
	v.logger.Info().Int("bytes", len(payload.Data)).Msg("video uploaded")
	return nil
}
