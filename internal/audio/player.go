package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
	"interviewdesk/internal/ports"
)

// Player drives the single playback sink through malgo.
type Player struct {
	logger zerolog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

var _ ports.AudioPlayer = (*Player)(nil)

func NewPlayer(logger zerolog.Logger) *Player {
	return &Player{logger: logger.With().Str("component", "player").Logger()}
}

// Init prepares the audio backend. Play calls it lazily.
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return domain.NewError(domain.ErrorKindPlayback, "failed to initialize audio output", err)
	}
	p.ctx = ctx
	return nil
}

// Close releases the audio backend.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}

func (p *Player) Play(ctx context.Context, pcm domain.PCM) (ports.Playback, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}
	if len(pcm.Data) == 0 {
		return nil, domain.NewError(domain.ErrorKindPlayback, "nothing to play", nil)
	}
	channels := pcm.Channels
	if channels <= 0 {
		channels = 1
	}

	pb := &malgoPlayback{
		pcm:      pcm.Data,
		finished: make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan error, 1),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(pcm.SampleRate)

	p.mu.Lock()
	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: pb.fill})
	p.mu.Unlock()
	if err != nil {
		return nil, domain.NewError(domain.ErrorKindPlayback, "failed to open audio output", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, domain.NewError(domain.ErrorKindPlayback, "failed to start audio output", err)
	}
	pb.device = device

	go pb.wait(ctx, p.logger)
	return pb, nil
}

type malgoPlayback struct {
	device *malgo.Device

	pcm      []byte
	offset   int
	level    atomic.Uint64
	finished chan struct{}
	endOnce  sync.Once

	stop     chan struct{}
	stopOnce sync.Once
	done     chan error
}

// fill runs on the audio thread.
func (pb *malgoPlayback) fill(pOutputSample, _ []byte, _ uint32) {
	n := copy(pOutputSample, pb.pcm[pb.offset:])
	pb.offset += n
	for i := n; i < len(pOutputSample); i++ {
		pOutputSample[i] = 0
	}
	pb.level.Store(math.Float64bits(RMS(pOutputSample[:n])))
	if pb.offset >= len(pb.pcm) {
		pb.endOnce.Do(func() { close(pb.finished) })
	}
}

func (pb *malgoPlayback) wait(ctx context.Context, logger zerolog.Logger) {
	var err error
	select {
	case <-pb.finished:
	case <-pb.stop:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if stopErr := pb.device.Stop(); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("failed to stop audio output")
	}
	pb.device.Uninit()
	pb.level.Store(0)
	if err != nil {
		pb.done <- fmt.Errorf("playback interrupted: %w", err)
	}
	close(pb.done)
}

func (pb *malgoPlayback) Level() float64 {
	return math.Float64frombits(pb.level.Load())
}

func (pb *malgoPlayback) Done() <-chan error { return pb.done }

func (pb *malgoPlayback) Stop() {
	pb.stopOnce.Do(func() { close(pb.stop) })
}
