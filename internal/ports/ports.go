package ports

import (
	"context"
	"time"

	"interviewdesk/internal/domain"
)

// AudioFormat describes signed 16-bit PCM.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// MicTap is one subscriber's view of the shared microphone.
type MicTap interface {
	Frames() <-chan []byte
	Format() AudioFormat
	Close() error
}

// MicSource hands out taps on a single microphone acquisition.
type MicSource interface {
	Subscribe() (MicTap, error)
}

// AudioRecorder records one user utterance at a time.
type AudioRecorder interface {
	Start(ctx context.Context) error
	Stop() (domain.AudioPayload, error)
}

// Transcriber turns an utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, payload domain.AudioPayload) (string, error)
}

// ChatRequest is what the AI collaborator sees on every turn.
type ChatRequest struct {
	History         []domain.Turn
	Config          domain.SessionConfig
	TimeLeftMinutes *int
}

// ChatService returns the next agent utterance.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// SpeechService synthesizes speech for an utterance.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error)
}

// AudioDecoder converts synthesized audio into playable PCM.
type AudioDecoder interface {
	Decode(ctx context.Context, audio domain.SpeechAudio) (domain.PCM, error)
}

// Playback is one utterance being played.
type Playback interface {
	// Level is the loudness of the frames most recently handed to the device.
	Level() float64
	Done() <-chan error
	Stop()
}

// AudioPlayer owns the playback sink.
type AudioPlayer interface {
	Init() error
	Play(ctx context.Context, pcm domain.PCM) (Playback, error)
}

// VideoRecorder records the whole session.
type VideoRecorder interface {
	Start(ctx context.Context) error
	Stop() (domain.VideoPayload, error)
}

// VideoUploader stores the session recording.
type VideoUploader interface {
	UploadVideo(ctx context.Context, key string, video domain.VideoPayload) error
}

// TranscriptStore persists the transcript for report generation.
type TranscriptStore interface {
	SubmitInterview(ctx context.Context, key string, history []domain.Turn) error
}

// Window controls fullscreen on the hosting window.
type Window interface {
	EnterFullscreen()
	ExitFullscreen()
}

// Ticker delivers clock ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// EventSink emits session state to the presentation layer.
type EventSink interface {
	SessionChanged(snapshot domain.Snapshot)
	Amplitude(level float64)
	SessionError(info domain.ErrorInfo)
	SessionEnded(outcome domain.Outcome)
}
