package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeChat struct {
	mu       sync.Mutex
	replies  []string
	err      error
	gate     chan struct{}
	requests []ports.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req ports.ChatRequest) (string, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, ports.ChatRequest{
		History:         append([]domain.Turn(nil), req.History...),
		Config:          req.Config,
		TimeLeftMinutes: req.TimeLeftMinutes,
	})
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if n < len(f.replies) {
		return f.replies[n], nil
	}
	return "", nil
}

func (f *fakeChat) calls() []ports.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ChatRequest(nil), f.requests...)
}

type fakeTranscriber struct {
	mu      sync.Mutex
	replies []string
	err     error
	count   int

	// gate, when set, holds Transcribe until closed or the context ends.
	gate chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ domain.AudioPayload) (string, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.count
	f.count++
	if f.err != nil {
		return "", f.err
	}
	if n < len(f.replies) {
		return f.replies[n], nil
	}
	return "", nil
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type fakeRecorder struct {
	mu        sync.Mutex
	payload   domain.AudioPayload
	startErr  error
	stopErr   error
	recording bool
	starts    int
	stops     int

	// onStart runs at the start of every Start call.
	onStart func()
}

func (f *fakeRecorder) Start(_ context.Context) error {
	if f.onStart != nil {
		f.onStart()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.recording = true
	return nil
}

func (f *fakeRecorder) Stop() (domain.AudioPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return domain.AudioPayload{}, nil
	}
	f.recording = false
	f.stops++
	return f.payload, f.stopErr
}

func (f *fakeRecorder) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeRecorder) isRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

type fakeSpeechService struct {
	mu    sync.Mutex
	texts []string
	err   error

	// gate, when set, holds Synthesize until closed or the context ends.
	gate chan struct{}
}

func (f *fakeSpeechService) Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.SpeechAudio{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	return domain.SpeechAudio{Data: []byte(text), MIMEType: "audio/wav"}, nil
}

func (f *fakeSpeechService) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeDecoder struct {
	err error
}

func (f fakeDecoder) Decode(_ context.Context, audio domain.SpeechAudio) (domain.PCM, error) {
	if f.err != nil {
		return domain.PCM{}, f.err
	}
	return domain.PCM{Data: audio.Data, SampleRate: 24000, Channels: 1}, nil
}

type fakePlayer struct {
	mu         sync.Mutex
	autoFinish bool
	level      float64
	initErr    error
	inits      int
	playbacks  []*fakePlayback
}

func (f *fakePlayer) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakePlayer) Play(ctx context.Context, pcm domain.PCM) (ports.Playback, error) {
	pb := &fakePlayback{text: string(pcm.Data), level: f.level, done: make(chan error, 1)}
	f.mu.Lock()
	f.playbacks = append(f.playbacks, pb)
	auto := f.autoFinish
	f.mu.Unlock()

	if auto {
		pb.finish()
	}
	go func() {
		select {
		case <-ctx.Done():
			pb.Stop()
		case <-pb.done:
		}
	}()
	return pb, nil
}

func (f *fakePlayer) played() []*fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePlayback(nil), f.playbacks...)
}

type fakePlayback struct {
	text  string
	level float64
	done  chan error

	mu      sync.Mutex
	once    sync.Once
	stopped bool
}

func (p *fakePlayback) Level() float64 { return p.level }

func (p *fakePlayback) Done() <-chan error { return p.done }

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

func (p *fakePlayback) finish() {
	p.once.Do(func() { close(p.done) })
}

func (p *fakePlayback) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeVideoRecorder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	payload  domain.VideoPayload
	starts   int
	stops    int
}

func (f *fakeVideoRecorder) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeVideoRecorder) Stop() (domain.VideoPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return domain.VideoPayload{}, f.stopErr
	}
	return f.payload, nil
}

func (f *fakeVideoRecorder) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeUploader struct {
	mu      sync.Mutex
	err     error
	keys    []string
	uploads int

	// block, when set, holds UploadVideo until the context ends.
	block bool
}

func (f *fakeUploader) UploadVideo(ctx context.Context, key string, _ domain.VideoPayload) error {
	f.mu.Lock()
	f.uploads++
	f.keys = append(f.keys, key)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	submits int
	key     string
	history []domain.Turn
}

func (f *fakeStore) SubmitInterview(_ context.Context, key string, history []domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.key = key
	f.history = append([]domain.Turn(nil), history...)
	return f.err
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeWindow struct {
	mu     sync.Mutex
	enters int
	exits  int
}

func (f *fakeWindow) EnterFullscreen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters++
}

func (f *fakeWindow) ExitFullscreen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits++
}

func (f *fakeWindow) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enters, f.exits
}

type fakeTicker struct {
	ch chan time.Time
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {}

type fakeEventSink struct {
	mu sync.Mutex

	snapshots []domain.Snapshot
	levels    []float64
	errors    []domain.ErrorInfo
	outcomes  []domain.Outcome
}

func (f *fakeEventSink) SessionChanged(snapshot domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot)
}

func (f *fakeEventSink) Amplitude(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
}

func (f *fakeEventSink) SessionError(info domain.ErrorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, info)
}

func (f *fakeEventSink) SessionEnded(outcome domain.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeEventSink) snapshotOutcomes() []domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Outcome(nil), f.outcomes...)
}

func (f *fakeEventSink) snapshotErrors() []domain.ErrorInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ErrorInfo(nil), f.errors...)
}

func (f *fakeEventSink) snapshotLevels() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.levels...)
}
