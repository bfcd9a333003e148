package deepgram

import (
	"context"
	"strings"
	"time"

	"interviewdesk/internal/audio"
	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// FinalizeTimeout bounds the wait for trailing results after the audio is sent.
	FinalizeTimeout time.Duration
}

// Provider transcribes recorded utterances through Deepgram's streaming listen socket.
type Provider struct {
	cfg Config
}

var _ ports.Transcriber = (*Provider)(nil)

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 5 * time.Second
	}
	return &Provider{cfg: cfg}
}

// Transcribe streams one recorded utterance and joins the final results.
func (p *Provider) Transcribe(ctx context.Context, payload domain.AudioPayload) (string, error) {
	data, format := p.prepare(payload)

	socket, err := p.dial(ctx, format)
	if err != nil {
		return "", err
	}

	var finals []string
	err = socket.stream(ctx, data, chunkSize, func(r listenResult) {
		if r.Final {
			finals = append(finals, r.Text)
		}
	})
	if err != nil {
		return "", domain.NewError(domain.ErrorKindTransport, "Deepgram transcription failed", err)
	}
	return strings.Join(finals, " "), nil
}

const chunkSize = 4096

// prepare strips the WAV header from recorder output so Deepgram receives raw linear16.
func (p *Provider) prepare(payload domain.AudioPayload) ([]byte, streamFormat) {
	if audio.IsWAV(payload.Data) {
		if pcm, err := audio.DecodeWAV(payload.Data); err == nil {
			return pcm.Data, streamFormat{Encoding: "linear16", SampleRate: pcm.SampleRate, Channels: pcm.Channels}
		}
	}
	return payload.Data, streamFormat{}
}
