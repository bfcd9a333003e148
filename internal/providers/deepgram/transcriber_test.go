package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interviewdesk/internal/audio"
	"interviewdesk/internal/domain"
)

func TestProviderTranscribeJoinsFinalResults(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	var query atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		query.Store(r.URL.RawQuery)
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				received.Add(int64(len(payload)))
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				break
			}
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"is_final":true,"channel":{"alternatives":[{"transcript":"I have five years"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"is_final":false,"channel":{"alternatives":[{"transcript":"of"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"speech_final":true,"channel":{"alternatives":[{"transcript":"of experience."}]}}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	pcm := make([]byte, 10000)
	wav := audio.EncodeWAV(domain.PCM{Data: pcm, SampleRate: 16000, Channels: 1})

	p := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL, FinalizeTimeout: 2 * time.Second})
	text, err := p.Transcribe(context.Background(), domain.AudioPayload{Data: wav, MIMEType: "audio/wav"})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "I have five years of experience." {
		t.Fatalf("unexpected transcript: %q", text)
	}
	if received.Load() != int64(len(pcm)) {
		t.Fatalf("expected raw pcm without the wav header, server got %d bytes", received.Load())
	}
	raw, _ := query.Load().(string)
	if !strings.Contains(raw, "encoding=linear16") || !strings.Contains(raw, "sample_rate=16000") {
		t.Fatalf("unexpected listen query: %s", raw)
	}
}

func TestProviderTranscribeProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","message":"quota exceeded"}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	p := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL, FinalizeTimeout: 2 * time.Second})
	_, err := p.Transcribe(context.Background(), domain.AudioPayload{Data: []byte("opaque-webm")})
	if domain.KindOf(err) != domain.ErrorKindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
}

func TestProviderTranscribeTimesOutWaitingForResults(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		<-release
	}))
	defer server.Close()
	defer close(release)

	p := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL, FinalizeTimeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := p.Transcribe(context.Background(), domain.AudioPayload{Data: []byte("opaque-webm")})
	if domain.KindOf(err) != domain.ErrorKindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("finalize timeout not honored: %s", elapsed)
	}
}

func TestProviderTranscribeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	p := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL, FinalizeTimeout: 10 * time.Second})
	_, err := p.Transcribe(ctx, domain.AudioPayload{Data: []byte("opaque-webm")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
