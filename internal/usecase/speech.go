package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// ErrSpeechPreempted is returned by Speak when a newer utterance or Stop cut it short.
var ErrSpeechPreempted = errors.New("speech preempted")

const maxAmplitude = 1.5

// SpeechConfig controls playback and amplitude sampling.
type SpeechConfig struct {
	AmplitudeInterval time.Duration
	AmplitudeGain     float64
	ErrorPrefixes     []string
}

// SpeechSynthesizer plays one utterance at a time through the shared playback sink.
type SpeechSynthesizer struct {
	service ports.SpeechService
	decoder ports.AudioDecoder
	player  ports.AudioPlayer
	cfg     SpeechConfig
	logger  zerolog.Logger

	// gen identifies the current utterance; every Stop and Speak advances it.
	gen atomic.Uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	playback ports.Playback

	ampMu       sync.Mutex
	amplitude   float64
	onAmplitude func(float64)
}

func NewSpeechSynthesizer(
	service ports.SpeechService,
	decoder ports.AudioDecoder,
	player ports.AudioPlayer,
	cfg SpeechConfig,
	logger zerolog.Logger,
) *SpeechSynthesizer {
	if cfg.AmplitudeInterval <= 0 {
		cfg.AmplitudeInterval = 50 * time.Millisecond
	}
	if cfg.AmplitudeGain <= 0 {
		cfg.AmplitudeGain = 4
	}
	return &SpeechSynthesizer{
		service: service,
		decoder: decoder,
		player:  player,
		cfg:     cfg,
		logger:  logger.With().Str("component", "speech").Logger(),
	}
}

// OnAmplitude registers a callback for amplitude samples. It must not call back into the
// synthesizer.
func (s *SpeechSynthesizer) OnAmplitude(fn func(level float64)) {
	s.ampMu.Lock()
	defer s.ampMu.Unlock()
	s.onAmplitude = fn
}

// InitAudio prepares the playback sink. The desktop shell calls it from a user gesture.
func (s *SpeechSynthesizer) InitAudio() error {
	if err := s.player.Init(); err != nil {
		return domain.NewError(domain.ErrorKindPlayback, "audio output unavailable", err)
	}
	return nil
}

// Speakable reports whether Speak would play anything for text.
func (s *SpeechSynthesizer) Speakable(text string) bool {
	return strings.TrimSpace(text) != "" && !IsErrorReply(text, s.cfg.ErrorPrefixes)
}

// Speak synthesizes and plays text, returning when playback ends. Any utterance already in
// flight is stopped first and returns ErrSpeechPreempted.
func (s *SpeechSynthesizer) Speak(ctx context.Context, text string) error {
	if !s.Speakable(text) {
		return nil
	}
	if ctx.Err() != nil {
		return ErrSpeechPreempted
	}
	s.Stop()

	speakCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	gen := s.gen.Add(1)
	s.cancel = cancel
	s.mu.Unlock()
	defer s.finish(gen, cancel)

	audio, err := s.service.Synthesize(speakCtx, text)
	if !s.live(speakCtx, gen) {
		return ErrSpeechPreempted
	}
	if err != nil {
		return err
	}

	pcm, err := s.decoder.Decode(speakCtx, audio)
	if !s.live(speakCtx, gen) {
		return ErrSpeechPreempted
	}
	if err != nil {
		return asPlaybackError("failed to decode speech", err)
	}

	playback, err := s.player.Play(speakCtx, pcm)
	if err != nil {
		if !s.live(speakCtx, gen) {
			return ErrSpeechPreempted
		}
		return asPlaybackError("failed to play speech", err)
	}

	s.mu.Lock()
	if s.gen.Load() != gen {
		s.mu.Unlock()
		playback.Stop()
		return ErrSpeechPreempted
	}
	s.playback = playback
	s.mu.Unlock()

	go s.sampleAmplitude(gen, playback)

	playErr := <-playback.Done()
	if !s.live(speakCtx, gen) {
		return ErrSpeechPreempted
	}
	if playErr != nil {
		return asPlaybackError("playback failed", playErr)
	}
	return nil
}

// Stop halts the current utterance, if any, and resets the amplitude to zero.
func (s *SpeechSynthesizer) Stop() {
	s.mu.Lock()
	s.gen.Add(1)
	cancel, playback := s.cancel, s.playback
	s.cancel, s.playback = nil, nil
	s.mu.Unlock()

	if playback != nil {
		playback.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.resetAmplitude()
}

// Speaking reports whether an utterance is being synthesized or played.
func (s *SpeechSynthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Amplitude returns the latest sample.
func (s *SpeechSynthesizer) Amplitude() float64 {
	s.ampMu.Lock()
	defer s.ampMu.Unlock()
	return s.amplitude
}

func (s *SpeechSynthesizer) live(ctx context.Context, gen uint64) bool {
	return ctx.Err() == nil && s.gen.Load() == gen
}

func (s *SpeechSynthesizer) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	current := s.gen.Load() == gen
	if current {
		s.cancel, s.playback = nil, nil
	}
	s.mu.Unlock()
	if current {
		s.resetAmplitude()
	}
}

// sampleAmplitude publishes the playback level on a fixed interval and exits on the first
// tick after its utterance is no longer current.
func (s *SpeechSynthesizer) sampleAmplitude(gen uint64, playback ports.Playback) {
	ticker := time.NewTicker(s.cfg.AmplitudeInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !s.publishAmplitude(gen, playback) {
			return
		}
	}
}

func (s *SpeechSynthesizer) publishAmplitude(gen uint64, playback ports.Playback) bool {
	s.ampMu.Lock()
	defer s.ampMu.Unlock()

	s.mu.Lock()
	live := s.gen.Load() == gen && s.playback == playback
	s.mu.Unlock()
	if !live {
		return false
	}

	level := min(playback.Level()*s.cfg.AmplitudeGain, maxAmplitude)
	s.amplitude = level
	if s.onAmplitude != nil {
		s.onAmplitude(level)
	}
	return true
}

func (s *SpeechSynthesizer) resetAmplitude() {
	s.ampMu.Lock()
	defer s.ampMu.Unlock()
	if s.amplitude == 0 {
		return
	}
	s.amplitude = 0
	if s.onAmplitude != nil {
		s.onAmplitude(0)
	}
}

// IsErrorReply reports whether text starts with one of the collaborator's failure markers.
func IsErrorReply(text string, prefixes []string) bool {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func asPlaybackError(message string, err error) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.NewError(domain.ErrorKindPlayback, message, err)
}
