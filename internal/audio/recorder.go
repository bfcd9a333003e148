package audio

import (
	"bytes"
	"context"
	"sync"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Recorder captures one utterance at a time from the shared microphone.
type Recorder struct {
	mic ports.MicSource

	mu   sync.Mutex
	tap  ports.MicTap
	buf  *bytes.Buffer
	done chan struct{}
}

var _ ports.AudioRecorder = (*Recorder)(nil)

func NewRecorder(mic ports.MicSource) *Recorder {
	return &Recorder{mic: mic}
}

// Start subscribes to the microphone. Starting while already recording is a no-op.
func (r *Recorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tap != nil {
		return nil
	}
	tap, err := r.mic.Subscribe()
	if err != nil {
		return domain.CaptureError("microphone unavailable", err)
	}

	r.tap = tap
	r.buf = &bytes.Buffer{}
	r.done = make(chan struct{})
	go collectFrames(tap, r.buf, r.done)
	return nil
}

// Stop releases the microphone and returns what was recorded. Stopping while idle returns an
// empty payload.
func (r *Recorder) Stop() (domain.AudioPayload, error) {
	r.mu.Lock()
	tap, buf, done := r.tap, r.buf, r.done
	r.tap, r.buf, r.done = nil, nil, nil
	r.mu.Unlock()

	if tap == nil {
		return domain.AudioPayload{}, nil
	}

	closeErr := tap.Close()
	<-done

	if buf.Len() == 0 {
		return domain.AudioPayload{}, closeErr
	}
	format := tap.Format()
	data := EncodeWAV(domain.PCM{Data: buf.Bytes(), SampleRate: format.SampleRate, Channels: format.Channels})
	return domain.AudioPayload{Data: data, MIMEType: "audio/wav"}, closeErr
}

// Recording reports whether a tap is held.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tap != nil
}

func collectFrames(tap ports.MicTap, buf *bytes.Buffer, done chan struct{}) {
	defer close(done)
	for frame := range tap.Frames() {
		buf.Write(frame)
	}
}
