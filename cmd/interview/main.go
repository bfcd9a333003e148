package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"interviewdesk/internal/bootstrap"
	"interviewdesk/internal/domain"
	"interviewdesk/internal/input"
	"interviewdesk/internal/profile"
	"interviewdesk/internal/usecase"
)

var (
	profilePath = flag.String("profile", "", "Path to the YAML launch profile")
	hotkeyFlag  = flag.String("hotkey", "", "Push-to-talk hotkey (default: INTERVIEW_HOTKEY or ctrl+shift+space)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *profilePath == "" {
		return fmt.Errorf("-profile is required")
	}

	services, err := bootstrap.Build()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	defer services.Close()
	logger := services.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	launch, err := profile.Load(*profilePath)
	if err != nil {
		return err
	}
	cfg, err := launch.SessionConfig(ctx, services.API)
	if err != nil {
		return err
	}

	sink := newConsoleSink(logger)
	session := services.NewSession(cfg, nil, sink)

	binding := *hotkeyFlag
	if binding == "" {
		binding = services.Config.Hotkey
	}
	ptt := input.NewPushToTalk(func(bool) { toggleMic(session) })
	sink.ptt = ptt

	if err := session.Start(ctx); err != nil {
		return err
	}
	if err := session.InitAudio(); err != nil {
		logger.Warn().Err(err).Msg("audio output unavailable; replies will not be spoken")
	}
	if err := ptt.Start(ctx, binding); err != nil {
		_ = session.Close()
		return err
	}
	defer ptt.Stop()

	logger.Info().Str("hotkey", binding).Str("mode", string(cfg.Mode)).Msg("interview started; press the hotkey to talk, Ctrl+C to finish")

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	interrupts := 0
	for {
		select {
		case <-session.Done():
			return nil
		case <-sigChan:
			interrupts++
			interrupt(session, interrupts, logger)
		}
	}
}

type finisher interface {
	RequestExit()
	ConfirmEnd()
	Abort()
}

// interrupt ends the session gracefully on the first signal and abandons pending uploads on
// any later one.
func interrupt(session finisher, count int, logger zerolog.Logger) {
	if count == 1 {
		logger.Info().Msg("finishing interview; press Ctrl+C again to abort")
		session.RequestExit()
		session.ConfirmEnd()
		return
	}
	logger.Warn().Msg("aborting; pending uploads are cancelled")
	session.Abort()
}

// toggleMic routes the hotkey by the live state so an ignored press never leaves the key
// out of step with the session.
func toggleMic(session *usecase.Orchestrator) {
	if session.Snapshot().State == domain.StateRecording {
		session.ReleaseMic()
		return
	}
	session.PressMic()
}

// consoleSink logs session progress to the terminal.
type consoleSink struct {
	logger zerolog.Logger
	ptt    *input.PushToTalk

	last    domain.State
	printed int
	errors  int
}

func newConsoleSink(logger zerolog.Logger) *consoleSink {
	return &consoleSink{logger: logger.With().Str("component", "console").Logger()}
}

// SessionChanged is called from the session loop only.
func (s *consoleSink) SessionChanged(snapshot domain.Snapshot) {
	for _, turn := range snapshot.Transcript[min(s.printed, len(snapshot.Transcript)):] {
		s.logger.Info().Str("speaker", string(turn.Speaker)).Msg(turn.Text)
	}
	s.printed = len(snapshot.Transcript)

	if snapshot.State == s.last {
		return
	}
	if s.last == domain.StateRecording && s.ptt != nil {
		s.ptt.Reset()
	}
	s.last = snapshot.State

	event := s.logger.Info().Str("state", snapshot.State.String())
	if snapshot.TimeRemaining != nil {
		event = event.Int("seconds_left", *snapshot.TimeRemaining)
	}
	event.Msg("session state")
}

func (s *consoleSink) Amplitude(float64) {}

func (s *consoleSink) SessionError(info domain.ErrorInfo) {
	s.errors++
	s.logger.Error().Str("kind", string(info.Kind)).Msg(info.Message)
}

func (s *consoleSink) SessionEnded(outcome domain.Outcome) {
	s.logger.Info().
		Str("trigger", string(outcome.Trigger)).
		Int("turns", len(outcome.Transcript)).
		Int("errors", s.errors).
		Bool("video_uploaded", outcome.VideoUploaded).
		Bool("transcript_persisted", outcome.TranscriptPersisted).
		Msg("interview ended")
}
