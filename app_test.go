package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"interviewdesk/internal/bootstrap"
	"interviewdesk/internal/config"
	"interviewdesk/internal/domain"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorKind]string{
		domain.ErrorKindStartup:     "Startup failed",
		domain.ErrorKindPermission:  "Camera or microphone access was denied",
		domain.ErrorKindCapture:     "Recording device unavailable",
		domain.ErrorKindTransport:   "Connection problem",
		domain.ErrorKindPlayback:    "Audio playback failed",
		domain.ErrorKindEmptyResult: "No speech detected",
	}
	for kind, want := range cases {
		kind := kind
		want := want
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(kind, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if err := app.PressMic(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error from command, got %v", err)
	}
}

func TestGetSnapshotWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	snapshot := app.GetSnapshot()
	if snapshot.State != domain.StateInitializing || snapshot.LastError != nil {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	app.bootErr = errors.New("boot")
	snapshot = app.GetSnapshot()
	if snapshot.LastError == nil || snapshot.LastError.Kind != domain.ErrorKindStartup || snapshot.LastError.Message != "boot" {
		t.Fatalf("unexpected boot snapshot: %+v", snapshot)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestCommandsWithoutSession(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t, "http://interview.test")
	for name, fn := range map[string]func() error{
		"press":   app.PressMic,
		"release": app.ReleaseMic,
		"return":  app.ReturnToSession,
		"confirm": app.ConfirmEnd,
		"exit":    app.RequestExit,
		"audio":   app.InitAudio,
	} {
		if err := fn(); !errors.Is(err, errNoSession) {
			t.Fatalf("%s: expected no session error, got %v", name, err)
		}
	}
	// Focus signals without a session are dropped.
	app.observeFullscreen(false)
	app.observeBlur()
	app.observeVisibility(true)
}

func TestBoolArg(t *testing.T) {
	t.Parallel()

	if v, ok := boolArg([]any{true}); !ok || !v {
		t.Fatalf("expected true")
	}
	if _, ok := boolArg(nil); ok {
		t.Fatalf("expected missing argument")
	}
	if _, ok := boolArg([]any{"true"}); ok {
		t.Fatalf("expected non-bool argument to be rejected")
	}
}

func TestUploadResumeAcceptsDataURL(t *testing.T) {
	t.Parallel()

	var got []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload_resume" {
			http.NotFound(w, r)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got, _ = io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(map[string]string{"resume_text": "Go developer"})
	}))
	t.Cleanup(server.Close)

	app, _ := newTestApp(t, server.URL)
	encoded := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	text, err := app.UploadResume("cv.pdf", encoded)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if text != "Go developer" || string(got) != "%PDF-1.4" {
		t.Fatalf("unexpected upload result %q (sent %q)", text, got)
	}

	if _, err := app.UploadResume("cv.pdf", "not base64!"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			_ = json.NewEncoder(w).Encode(map[string]string{"reply": "Error: model unavailable"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	app, events := newTestApp(t, server.URL)
	window := app.window.(*fakeWindow)

	if _, err := app.StartSession(domain.SessionConfig{Mode: domain.ModeResume, UserName: "Dana"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForState(t, app, domain.StateIdle)
	if _, err := app.StartSession(domain.SessionConfig{Mode: domain.ModeResume}); !errors.Is(err, errSessionRunning) {
		t.Fatalf("expected running session error, got %v", err)
	}
	if window.enters() != 1 {
		t.Fatalf("expected fullscreen on mount, got %d", window.enters())
	}

	app.observeFullscreen(false)
	waitForState(t, app, domain.Paused(domain.PauseFullscreenExit))

	if err := app.ConfirmEnd(); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	waitForState(t, app, domain.StateEnded)

	ended := events.named(eventEnded)
	if len(ended) != 1 {
		t.Fatalf("expected one ended event, got %d", len(ended))
	}
	outcome := ended[0].(domain.Outcome)
	if outcome.Trigger != domain.FinishUserConfirmed || len(outcome.Transcript) != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(events.named(eventState)) == 0 {
		t.Fatalf("expected state events")
	}

	if _, err := app.StartSession(domain.SessionConfig{Mode: domain.ModePosition, Role: "SRE"}); err != nil {
		t.Fatalf("expected a new session after the previous one ended: %v", err)
	}
	app.shutdown(context.Background())
	if got := app.GetSnapshot().State; got != domain.StateEnded {
		t.Fatalf("expected shutdown to end the session, got %s", got)
	}
}

func TestStartSessionRejectsInvalidLaunch(t *testing.T) {
	t.Parallel()

	app, events := newTestApp(t, "http://interview.test")
	_, err := app.StartSession(domain.SessionConfig{Mode: domain.ModeEvaluation, DurationSeconds: 60})
	if domain.KindOf(err) != domain.ErrorKindStartup {
		t.Fatalf("expected startup error, got %v", err)
	}
	if len(events.named(eventError)) != 1 {
		t.Fatalf("expected an error event")
	}
	if _, err := app.current(); !errors.Is(err, errNoSession) {
		t.Fatalf("rejected launch must not become the current session")
	}
}

func newTestApp(t *testing.T, baseURL string) (*App, *eventLog) {
	t.Helper()

	cfg := config.Config{
		API:     config.APIConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		Session: config.SessionConfig{EndPhrase: config.DefaultEndPhrase, ErrorPrefixes: config.DefaultErrorPrefixes},
	}
	log := &eventLog{}
	app := &App{
		ctx:      context.Background(),
		services: bootstrap.BuildWith(cfg, zerolog.Nop()),
		window:   &fakeWindow{},
		emit:     log.record,
	}
	return app, log
}

func waitForState(t *testing.T, app *App, want domain.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if app.GetSnapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, state is %s", want, app.GetSnapshot().State)
}

type emitted struct {
	event string
	data  any
}

type eventLog struct {
	mu     sync.Mutex
	events []emitted
}

func (l *eventLog) record(event string, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, emitted{event: event, data: data})
}

func (l *eventLog) named(event string) []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []any
	for _, e := range l.events {
		if e.event == event {
			out = append(out, e.data)
		}
	}
	return out
}

type fakeWindow struct {
	mu      sync.Mutex
	entered int
	exited  int
}

func (w *fakeWindow) EnterFullscreen() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entered++
}

func (w *fakeWindow) ExitFullscreen() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.exited++
}

func (w *fakeWindow) enters() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entered
}
