package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"interviewdesk/internal/api"
	"interviewdesk/internal/config"
	"interviewdesk/internal/domain"
	"interviewdesk/internal/providers/deepgram"
)

func TestBuildSuccess(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INTERVIEW_API_BASE", "http://interview.test/")
	t.Setenv("INTERVIEW_STT_PROVIDER", "")

	services, err := Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.API == nil || services.Mic == nil || services.Player == nil {
		t.Fatalf("expected shared services, got %+v", services)
	}
	if services.API.BaseURL != "http://interview.test" {
		t.Fatalf("unexpected base url: %q", services.API.BaseURL)
	}
	if services.Mic.Active() {
		t.Fatalf("microphone must not be held before a session records")
	}
}

func TestNewTranscriberSelection(t *testing.T) {
	t.Parallel()

	client := api.NewClient(api.Config{BaseURL: "http://interview.test"})
	logger := zerolog.Nop()

	cfg := config.Config{STT: config.STTConfig{Provider: "http"}}
	if _, ok := newTranscriber(cfg, client, logger).(*api.Client); !ok {
		t.Fatalf("expected http transcriber")
	}

	cfg.STT.Provider = "deepgram"
	if _, ok := newTranscriber(cfg, client, logger).(*api.Client); !ok {
		t.Fatalf("expected http fallback without a deepgram key")
	}

	cfg.Deepgram.APIKey = "dg-key"
	if _, ok := newTranscriber(cfg, client, logger).(*deepgram.Provider); !ok {
		t.Fatalf("expected deepgram transcriber")
	}
}

func TestNewSessionBuildsIndependentOrchestrators(t *testing.T) {
	t.Parallel()

	services := BuildWith(config.Config{API: config.APIConfig{BaseURL: "http://interview.test"}}, zerolog.Nop())

	first := services.NewSession(domain.SessionConfig{Mode: domain.ModeResume, UserName: "Dana"}, nil, nil)
	second := services.NewSession(domain.SessionConfig{Mode: domain.ModeResume, UserName: "Dana"}, nil, nil)
	if first.ID() == "" || first.ID() == second.ID() {
		t.Fatalf("expected distinct session ids, got %q and %q", first.ID(), second.ID())
	}
	if got := first.Snapshot().State; got != domain.StateInitializing {
		t.Fatalf("unexpected initial state: %s", got)
	}

	eval := services.NewSession(domain.SessionConfig{Mode: domain.ModeEvaluation, DurationSeconds: 60}, nil, nil)
	err := eval.Start(context.Background())
	if domain.KindOf(err) != domain.ErrorKindStartup {
		t.Fatalf("expected startup error for evaluation without key, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("unexpected log output: %s", out)
	}

	buf.Reset()
	NewLogger("chatty", &buf).Debug().Msg("debug")
	if buf.Len() != 0 {
		t.Fatalf("unknown level should default to info, got %s", buf.String())
	}
}
