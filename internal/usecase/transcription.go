package usecase

import (
	"context"
	"strings"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// DefaultMinAudioSize is the smallest payload worth sending for transcription.
const DefaultMinAudioSize = 2048

// TranscriptionClient rejects silence locally and makes one attempt per utterance.
type TranscriptionClient struct {
	transcriber ports.Transcriber
	minSize     int
}

func NewTranscriptionClient(transcriber ports.Transcriber, minSize int) *TranscriptionClient {
	if minSize <= 0 {
		minSize = DefaultMinAudioSize
	}
	return &TranscriptionClient{transcriber: transcriber, minSize: minSize}
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, payload domain.AudioPayload) (string, error) {
	if payload.Len() < c.minSize {
		return "", domain.NewError(domain.ErrorKindEmptyResult, "no speech detected", nil)
	}
	text, err := c.transcriber.Transcribe(ctx, payload)
	if err != nil {
		if domain.KindOf(err) == "" {
			return "", domain.NewError(domain.ErrorKindTransport, "transcription failed", err)
		}
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewError(domain.ErrorKindEmptyResult, "no speech detected", nil)
	}
	return text, nil
}
