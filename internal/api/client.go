package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

var ErrMissingBaseURL = errors.New("interview API base URL is not configured")

// Config controls the collaborator HTTP client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	AgentSpeaker string
}

// Client talks to the interview backend over its documented HTTP endpoints.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	AgentSpeaker string
}

var (
	_ ports.ChatService     = (*Client)(nil)
	_ ports.Transcriber     = (*Client)(nil)
	_ ports.SpeechService   = (*Client)(nil)
	_ ports.VideoUploader   = (*Client)(nil)
	_ ports.TranscriptStore = (*Client)(nil)
)

func NewClient(cfg Config) *Client {
	if cfg.AgentSpeaker == "" {
		cfg.AgentSpeaker = "alex"
	}
	return &Client{
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		AgentSpeaker: cfg.AgentSpeaker,
	}
}

type wireTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type chatRequest struct {
	History      []wireTurn `json:"history"`
	Mode         string     `json:"mode"`
	Role         string     `json:"role,omitempty"`
	Skills       string     `json:"skills,omitempty"`
	ResumeText   string     `json:"resume_text,omitempty"`
	UserName     string     `json:"user_name"`
	TimeLeftMins *int       `json:"time_left_mins,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type sttResponse struct {
	Transcript string `json:"transcript"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type submitRequest struct {
	Key     string     `json:"key"`
	History []wireTurn `json:"history"`
}

// KeyStatus is the result of checking an evaluation access key.
type KeyStatus struct {
	Valid   bool   `json:"valid"`
	Used    bool   `json:"used,omitempty"`
	Message string `json:"message,omitempty"`
}

// Evaluation is returned when the backend opens an evaluation session.
type Evaluation struct {
	Key             string `json:"key"`
	Role            string `json:"role,omitempty"`
	Skills          string `json:"skills,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Chat sends the full history and returns the next agent utterance. A missing reply is
// returned as an empty string without error.
func (c *Client) Chat(ctx context.Context, req ports.ChatRequest) (string, error) {
	body := chatRequest{
		History:      c.toWire(req.History),
		Mode:         string(req.Config.Mode),
		Role:         req.Config.Role,
		Skills:       req.Config.Skills,
		ResumeText:   req.Config.ResumeText,
		UserName:     req.Config.UserName,
		TimeLeftMins: req.TimeLeftMinutes,
	}

	var out chatResponse
	if err := c.postJSON(ctx, "/api/chat", body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Reply), nil
}

// Transcribe uploads one utterance as multipart field audio_blob.
func (c *Client) Transcribe(ctx context.Context, payload domain.AudioPayload) (string, error) {
	body, contentType, err := multipartBody(nil, "audio_blob", "recording"+extensionFor(payload.MIMEType), payload.MIMEType, payload.Data)
	if err != nil {
		return "", err
	}

	var out sttResponse
	if err := c.do(ctx, "/api/stt", contentType, body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Transcript), nil
}

// Synthesize returns the audio bytes for text.
func (c *Client) Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	resp, err := c.send(ctx, "/api/tts", "application/json", bytes.NewReader(payload))
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus("/api/tts", resp); err != nil {
		return domain.SpeechAudio{}, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SpeechAudio{}, domain.NewError(domain.ErrorKindTransport, "failed to read synthesized speech", err)
	}
	return domain.SpeechAudio{Data: data, MIMEType: resp.Header.Get("Content-Type")}, nil
}

// UploadVideo stores the session recording under key.
func (c *Client) UploadVideo(ctx context.Context, key string, video domain.VideoPayload) error {
	body, contentType, err := multipartBody(map[string]string{"key": key}, "video", key+extensionFor(video.MIMEType), video.MIMEType, video.Data)
	if err != nil {
		return err
	}
	return c.do(ctx, "/api/upload_video", contentType, body, nil)
}

// SubmitInterview persists the transcript for later report generation.
func (c *Client) SubmitInterview(ctx context.Context, key string, history []domain.Turn) error {
	return c.postJSON(ctx, "/api/submit_interview", submitRequest{Key: key, History: c.toWire(history)}, nil)
}

// VerifyKey checks an evaluation access key before a session is constructed.
func (c *Client) VerifyKey(ctx context.Context, key string) (KeyStatus, error) {
	var out KeyStatus
	if err := c.postJSON(ctx, "/api/verify_key", map[string]string{"key": key}, &out); err != nil {
		return KeyStatus{}, err
	}
	return out, nil
}

// StartEvaluation marks key as in use and returns the evaluation parameters.
func (c *Client) StartEvaluation(ctx context.Context, key string, userName string) (Evaluation, error) {
	var out Evaluation
	if err := c.postJSON(ctx, "/api/start_evaluation", map[string]string{"key": key, "user_name": userName}, &out); err != nil {
		return Evaluation{}, err
	}
	if out.Key == "" {
		out.Key = key
	}
	return out, nil
}

// UploadResume converts a PDF resume to text on the backend.
func (c *Client) UploadResume(ctx context.Context, filename string, data []byte) (string, error) {
	body, contentType, err := multipartBody(nil, "file", filename, "application/pdf", data)
	if err != nil {
		return "", err
	}
	var out struct {
		ResumeText string `json:"resume_text"`
	}
	if err := c.do(ctx, "/api/upload_resume", contentType, body, &out); err != nil {
		return "", err
	}
	return out.ResumeText, nil
}

func (c *Client) toWire(history []domain.Turn) []wireTurn {
	out := make([]wireTurn, 0, len(history))
	for _, turn := range history {
		speaker := string(turn.Speaker)
		if turn.Speaker == domain.SpeakerAgent {
			speaker = c.AgentSpeaker
		}
		out = append(out, wireTurn{Speaker: speaker, Text: turn.Text})
	}
	return out
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}
	return c.do(ctx, path, "application/json", payload, out)
}

func (c *Client) do(ctx context.Context, path string, contentType string, body []byte, out any) error {
	resp, err := c.send(ctx, path, contentType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(path, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewError(domain.ErrorKindTransport, fmt.Sprintf("invalid %s response", path), err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, path string, contentType string, body io.Reader) (*http.Response, error) {
	if c.BaseURL == "" {
		return nil, domain.NewError(domain.ErrorKindTransport, "", ErrMissingBaseURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindTransport, fmt.Sprintf("%s request failed", path), err)
	}
	return resp, nil
}

func checkStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		return domain.NewError(domain.ErrorKindTransport, strings.TrimSpace(parsed.Error), nil)
	}
	return domain.NewError(domain.ErrorKindTransport, fmt.Sprintf("%s failed with status %d", path, resp.StatusCode), nil)
}

func multipartBody(fields map[string]string, fileField string, filename string, mimeType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func extensionFor(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
