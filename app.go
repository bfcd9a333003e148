package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"interviewdesk/internal/api"
	"interviewdesk/internal/bootstrap"
	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
	"interviewdesk/internal/usecase"
)

const (
	eventState     = "interview:state"
	eventAmplitude = "interview:amplitude"
	eventError     = "interview:error"
	eventEnded     = "interview:ended"

	eventFullscreen = "interview:fullscreen"
	eventBlur       = "interview:blur"
	eventVisibility = "interview:visibility"
)

var (
	errNoSession      = errors.New("no interview session is running")
	errSessionRunning = errors.New("an interview session is already running")
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	bootErr  error
	window   ports.Window
	emit     func(event string, data any)

	mu      sync.Mutex
	session *usecase.Orchestrator
}

var _ ports.EventSink = (*App)(nil)

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.window = wailsWindow{ctx: ctx}
	a.emit = func(event string, data any) { runtime.EventsEmit(ctx, event, data) }

	services, err := bootstrap.Build()
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorInfo{Kind: domain.ErrorKindStartup, Message: err.Error()})
		return
	}
	a.services = services

	runtime.EventsOn(ctx, eventFullscreen, func(data ...any) {
		if active, ok := boolArg(data); ok {
			a.observeFullscreen(active)
		}
	})
	runtime.EventsOn(ctx, eventBlur, func(...any) { a.observeBlur() })
	runtime.EventsOn(ctx, eventVisibility, func(data ...any) {
		if hidden, ok := boolArg(data); ok {
			a.observeVisibility(hidden)
		}
	})
}

func (a *App) shutdown(_ context.Context) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn().Err(err).Msg("failed to release audio output")
	}
}

// StartSession mounts a new interview. Only one session runs at a time.
func (a *App) StartSession(cfg domain.SessionConfig) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil && !a.session.Snapshot().State.Terminal() {
		return domain.Snapshot{}, errSessionRunning
	}

	session := a.services.NewSession(cfg, a.window, a)
	if err := session.Start(a.ctx); err != nil {
		a.SessionError(domain.InfoFromError(err))
		return domain.Snapshot{}, err
	}
	a.session = session
	return session.Snapshot(), nil
}

// InitAudio prepares speech playback. The frontend calls it from a user gesture.
func (a *App) InitAudio() error {
	session, err := a.current()
	if err != nil {
		return err
	}
	if err := session.InitAudio(); err != nil {
		a.SessionError(domain.InfoFromError(err))
		return err
	}
	return nil
}

func (a *App) PressMic() error {
	return a.command((*usecase.Orchestrator).PressMic)
}

func (a *App) ReleaseMic() error {
	return a.command((*usecase.Orchestrator).ReleaseMic)
}

func (a *App) ReturnToSession() error {
	return a.command((*usecase.Orchestrator).Return)
}

func (a *App) ConfirmEnd() error {
	return a.command((*usecase.Orchestrator).ConfirmEnd)
}

func (a *App) RequestExit() error {
	return a.command((*usecase.Orchestrator).RequestExit)
}

// GetSnapshot returns the current session view, or an initializing view before any session.
func (a *App) GetSnapshot() domain.Snapshot {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		snapshot := domain.Snapshot{State: domain.StateInitializing}
		if a.bootErr != nil {
			snapshot.LastError = &domain.ErrorInfo{Kind: domain.ErrorKindStartup, Message: a.bootErr.Error()}
		}
		return snapshot
	}
	return session.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	provider := "Interview API"
	if cfg.STT.Provider == "deepgram" && cfg.Deepgram.APIKey != "" {
		provider = "Deepgram"
	}
	return map[string]string{
		"apiBase":       cfg.API.BaseURL,
		"sttProvider":   provider,
		"videoInput":    cfg.Video.Device,
		"videoFormat":   cfg.Video.InputFormat,
		"pushToTalkKey": cfg.Hotkey,
	}
}

// VerifyKey checks an evaluation access key.
func (a *App) VerifyKey(key string) (api.KeyStatus, error) {
	if err := a.requireReady(); err != nil {
		return api.KeyStatus{}, err
	}
	return a.services.API.VerifyKey(a.ctx, strings.TrimSpace(key))
}

// StartEvaluation claims key and returns the parameters for an evaluation launch.
func (a *App) StartEvaluation(key string, userName string) (domain.SessionConfig, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionConfig{}, err
	}
	eval, err := a.services.API.StartEvaluation(a.ctx, strings.TrimSpace(key), strings.TrimSpace(userName))
	if err != nil {
		return domain.SessionConfig{}, err
	}
	return domain.SessionConfig{
		Mode:            domain.ModeEvaluation,
		UserName:        strings.TrimSpace(userName),
		Role:            eval.Role,
		Skills:          eval.Skills,
		AccessKey:       eval.Key,
		DurationSeconds: eval.DurationSeconds,
	}, nil
}

// UploadResume converts a base64-encoded PDF into resume text.
func (a *App) UploadResume(filename string, encoded string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid resume upload: %w", err)
	}
	return a.services.API.UploadResume(a.ctx, filename, data)
}

func (a *App) command(fn func(*usecase.Orchestrator)) error {
	session, err := a.current()
	if err != nil {
		return err
	}
	fn(session)
	return nil
}

func (a *App) current() (*usecase.Orchestrator, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, errNoSession
	}
	return a.session, nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.API == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) focusGuard() *usecase.FocusGuard {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	return a.session.Focus()
}

func (a *App) observeFullscreen(active bool) {
	if guard := a.focusGuard(); guard != nil {
		guard.ObserveFullscreen(active)
	}
}

func (a *App) observeBlur() {
	if guard := a.focusGuard(); guard != nil {
		guard.ObserveBlur()
	}
}

func (a *App) observeVisibility(hidden bool) {
	if guard := a.focusGuard(); guard != nil {
		guard.ObserveVisibility(hidden)
	}
}

// SessionChanged emits the session view after every transition.
func (a *App) SessionChanged(snapshot domain.Snapshot) {
	a.send(eventState, snapshot)
}

// Amplitude emits the speaking avatar level.
func (a *App) Amplitude(level float64) {
	a.send(eventAmplitude, map[string]float64{"level": level})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(info domain.ErrorInfo) {
	a.send(eventError, map[string]string{
		"code":    string(info.Kind),
		"message": errorMessage(info.Kind, info.Message),
		"detail":  info.Message,
	})
}

// SessionEnded reports the outcome to the parent view.
func (a *App) SessionEnded(outcome domain.Outcome) {
	a.send(eventEnded, outcome)
}

func (a *App) send(event string, data any) {
	if a.emit == nil {
		return
	}
	a.emit(event, data)
}

func errorMessage(kind domain.ErrorKind, detail string) string {
	switch kind {
	case domain.ErrorKindStartup:
		return "Startup failed"
	case domain.ErrorKindPermission:
		return "Camera or microphone access was denied"
	case domain.ErrorKindCapture:
		return "Recording device unavailable"
	case domain.ErrorKindTransport:
		return "Connection problem"
	case domain.ErrorKindPlayback:
		return "Audio playback failed"
	case domain.ErrorKindEmptyResult:
		return "No speech detected"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func boolArg(data []any) (bool, bool) {
	if len(data) == 0 {
		return false, false
	}
	value, ok := data[0].(bool)
	return value, ok
}

type wailsWindow struct {
	ctx context.Context
}

func (w wailsWindow) EnterFullscreen() { runtime.WindowFullscreen(w.ctx) }

func (w wailsWindow) ExitFullscreen() { runtime.WindowUnfullscreen(w.ctx) }
