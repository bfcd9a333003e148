package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Decoder turns synthesized speech into mono PCM. WAV is parsed in-process; every other
// container goes through ffmpeg.
type Decoder struct {
	command    string
	sampleRate int
}

var _ ports.AudioDecoder = (*Decoder)(nil)

func NewDecoder(command string, sampleRate int) *Decoder {
	if command == "" {
		command = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Decoder{command: command, sampleRate: sampleRate}
}

func (d *Decoder) Decode(ctx context.Context, speech domain.SpeechAudio) (domain.PCM, error) {
	if len(speech.Data) == 0 {
		return domain.PCM{}, domain.NewError(domain.ErrorKindPlayback, "synthesized speech is empty", nil)
	}

	if IsWAV(speech.Data) {
		pcm, err := DecodeWAV(speech.Data)
		if err != nil {
			return domain.PCM{}, domain.NewError(domain.ErrorKindPlayback, "failed to decode synthesized speech", err)
		}
		return pcm, nil
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, d.command, args...)
	cmd.Stdin = bytes.NewReader(speech.Data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return domain.PCM{}, domain.NewError(domain.ErrorKindPlayback, "failed to decode synthesized speech", err)
	}
	if stdout.Len() == 0 {
		return domain.PCM{}, domain.NewError(domain.ErrorKindPlayback, "failed to decode synthesized speech", errors.New("decoder produced no audio"))
	}
	return domain.PCM{Data: stdout.Bytes(), SampleRate: d.sampleRate, Channels: 1}, nil
}
