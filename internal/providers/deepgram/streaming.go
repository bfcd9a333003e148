package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"interviewdesk/internal/domain"
)

// streamFormat declares raw PCM to Deepgram. The zero value sends container audio and lets
// the server detect the codec.
type streamFormat struct {
	Encoding   string
	SampleRate int
	Channels   int
}

type listenResult struct {
	Text  string
	Final bool
}

// providerError is an error message sent by Deepgram over the socket.
type providerError struct {
	message string
}

func (e *providerError) Error() string { return e.message }

// listenSocket carries one recorded utterance to the listen endpoint.
type listenSocket struct {
	conn     *websocket.Conn
	finalize time.Duration
}

func (p *Provider) dial(ctx context.Context, format streamFormat) (*listenSocket, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.ErrorKindTransport, "", errors.New("DEEPGRAM_API_KEY is not configured"))
	}
	target, err := listenURL(p.cfg, format)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindTransport, "", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.cfg.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindTransport, "failed to connect to Deepgram", err)
	}
	return &listenSocket{conn: conn, finalize: p.cfg.FinalizeTimeout}, nil
}

// stream sends data in chunks followed by CloseStream, and hands every transcript message to
// onResult until the server closes the socket. onResult runs on the calling goroutine.
func (s *listenSocket) stream(ctx context.Context, data []byte, chunkSize int, onResult func(listenResult)) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	written := make(chan error, 1)
	go func() { written <- s.write(data, chunkSize) }()

	readErr := s.read(onResult)
	writeErr := <-written

	var fromProvider *providerError
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(readErr, &fromProvider):
		return readErr
	case writeErr != nil:
		return writeErr
	default:
		return readErr
	}
}

func (s *listenSocket) write(data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, data[:n]); err != nil {
			_ = s.conn.Close()
			return fmt.Errorf("failed to send audio: %w", err)
		}
		data = data[n:]
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		_ = s.conn.Close()
		return fmt.Errorf("failed to close stream: %w", err)
	}
	// Trailing results must arrive within the finalize window.
	if s.finalize > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.finalize))
	}
	return nil
}

func (s *listenSocket) read(onResult func(listenResult)) error {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("failed to read results: %w", err)
		}

		var msg listenResponse
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if strings.EqualFold(msg.Type, "Error") {
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			return &providerError{message: message}
		}
		if text := msg.transcript(); text != "" {
			onResult(listenResult{Text: text, Final: msg.IsFinal || msg.SpeechFinal})
		}
	}
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcript returns the top alternative from either the streaming or the batch layout.
func (r listenResponse) transcript() string {
	if len(r.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(r.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(r.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func listenURL(cfg Config, format streamFormat) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}
	u, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	q.Set("interim_results", "false")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if format.Encoding != "" {
		rate, channels := format.SampleRate, format.Channels
		if rate <= 0 {
			rate = 16000
		}
		if channels <= 0 {
			channels = 1
		}
		q.Set("encoding", format.Encoding)
		q.Set("sample_rate", strconv.Itoa(rate))
		q.Set("channels", strconv.Itoa(channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
