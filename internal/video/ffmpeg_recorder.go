package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Config controls how ffmpeg records the camera.
type Config struct {
	Command     string
	InputFormat string
	Device      string
	// WithAudio muxes the shared microphone into the recording.
	WithAudio bool
	TempDir   string
	StopGrace time.Duration
}

// FFMPEGRecorder records the camera, and optionally the microphone, to a webm file.
type FFMPEGRecorder struct {
	cfg    Config
	mic    ports.MicSource
	logger zerolog.Logger

	mu  sync.Mutex
	run *recording
}

var _ ports.VideoRecorder = (*FFMPEGRecorder)(nil)

func NewFFMPEGRecorder(cfg Config, mic ports.MicSource, logger zerolog.Logger) *FFMPEGRecorder {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 3 * time.Second
	}
	return &FFMPEGRecorder{
		cfg:    cfg,
		mic:    mic,
		logger: logger.With().Str("component", "video").Logger(),
	}
}

// Start launches ffmpeg. Starting while already recording is a no-op.
func (r *FFMPEGRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return nil
	}

	var tap ports.MicTap
	if r.cfg.WithAudio && r.mic != nil {
		subscribed, err := r.mic.Subscribe()
		if err != nil {
			return domain.CaptureError("microphone unavailable for recording", err)
		}
		tap = subscribed
	}

	output := filepath.Join(r.cfg.TempDir, "interview-"+uuid.NewString()+".webm")
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.args(tap, output)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stdin io.WriteCloser
	if tap != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			_ = tap.Close()
			return fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
		}
		stdin = pipe
	}

	if err := cmd.Start(); err != nil {
		closeTap(tap)
		return domain.CaptureError("failed to start video recording", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	pumped := make(chan struct{})
	if tap != nil {
		go pumpFrames(tap, stdin, pumped)
	} else {
		close(pumped)
	}

	select {
	case err := <-waitErr:
		closeTap(tap)
		<-pumped
		_ = os.Remove(output)
		detail := trimmed(stderr.String())
		if err != nil {
			return domain.CaptureError("video recording exited before it started", fmt.Errorf("%w: %s", err, detail))
		}
		return domain.CaptureError("video recording exited before it started", errors.New(detail))
	case <-time.After(250 * time.Millisecond):
	}

	r.run = &recording{
		output:  output,
		tap:     tap,
		pumped:  pumped,
		process: cmd.Process,
		waitErr: waitErr,
		stderr:  &stderr,
	}
	r.logger.Info().Str("device", r.cfg.Device).Bool("audio", tap != nil).Msg("video recording started")
	return nil
}

// Stop finalizes the recording and returns the file contents. Stopping while idle returns an
// empty payload.
func (r *FFMPEGRecorder) Stop() (domain.VideoPayload, error) {
	r.mu.Lock()
	run := r.run
	r.run = nil
	r.mu.Unlock()

	if run == nil {
		return domain.VideoPayload{}, nil
	}
	defer os.Remove(run.output)

	stopErr := run.stop(r.cfg.StopGrace)
	data, err := os.ReadFile(run.output)
	if err != nil {
		if stopErr != nil {
			return domain.VideoPayload{}, domain.NewError(domain.ErrorKindCapture, "video recording failed", stopErr)
		}
		return domain.VideoPayload{}, domain.NewError(domain.ErrorKindCapture, "video recording produced no file", err)
	}
	if stopErr != nil {
		r.logger.Warn().Err(stopErr).Msg("ffmpeg did not exit cleanly")
	}
	r.logger.Info().Int("bytes", len(data)).Msg("video recording stopped")
	return domain.VideoPayload{Data: data, MIMEType: "video/webm"}, nil
}

func (r *FFMPEGRecorder) args(tap ports.MicTap, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-y"}
	if tap == nil {
		args = append(args, "-nostdin")
	}
	args = append(args, "-f", r.cfg.InputFormat, "-i", r.cfg.Device)
	if tap != nil {
		format := tap.Format()
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(format.SampleRate),
			"-ac", strconv.Itoa(format.Channels),
			"-i", "pipe:0",
			"-c:a", "libopus",
		)
	}
	args = append(args,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-f", "webm",
		output,
	)
	return args
}

type recording struct {
	output string
	tap    ports.MicTap
	pumped chan struct{}

	process *os.Process
	waitErr <-chan error
	stderr  *bytes.Buffer
}

func (s *recording) stop(grace time.Duration) error {
	// Ending the audio input first lets ffmpeg flush the muxer.
	closeTap(s.tap)
	<-s.pumped

	if s.process != nil {
		_ = s.process.Signal(os.Interrupt)
	}

	var stopErr error
	select {
	case err, ok := <-s.waitErr:
		if ok {
			stopErr = normalizeStopErr(err)
		}
	case <-time.After(grace):
		if s.process != nil {
			_ = s.process.Kill()
		}
		err, ok := <-s.waitErr
		if ok {
			stopErr = normalizeStopErr(err)
		}
	}

	if stopErr != nil && s.stderr.Len() > 0 {
		stopErr = fmt.Errorf("%w: %s", stopErr, trimmed(s.stderr.String()))
	}
	return stopErr
}

func pumpFrames(tap ports.MicTap, stdin io.WriteCloser, done chan struct{}) {
	defer close(done)
	defer stdin.Close()

	var writeErr error
	for frame := range tap.Frames() {
		if writeErr != nil {
			continue
		}
		_, writeErr = stdin.Write(frame)
	}
}

func closeTap(tap ports.MicTap) {
	if tap != nil {
		_ = tap.Close()
	}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
