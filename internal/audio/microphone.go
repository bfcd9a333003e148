package audio

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"interviewdesk/internal/ports"
)

// CaptureDevice is an open microphone. Close must release the hardware.
type CaptureDevice interface {
	Close() error
}

// OpenFunc opens a capture device that delivers s16le frames to onData.
type OpenFunc func(format ports.AudioFormat, onData func(frame []byte)) (CaptureDevice, error)

// Microphone shares one capture device between any number of taps. The device is opened on
// the first subscription and released as soon as the last tap closes.
type Microphone struct {
	format ports.AudioFormat
	open   OpenFunc
	logger zerolog.Logger

	mu     sync.Mutex
	device CaptureDevice
	taps   map[*Tap]struct{}
}

var _ ports.MicSource = (*Microphone)(nil)

func NewMicrophone(format ports.AudioFormat, open OpenFunc, logger zerolog.Logger) *Microphone {
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	if open == nil {
		open = OpenMalgoCapture
	}
	return &Microphone{
		format: format,
		open:   open,
		logger: logger.With().Str("component", "microphone").Logger(),
		taps:   make(map[*Tap]struct{}),
	}
}

// Subscribe returns a new tap, opening the device if nobody holds it yet.
func (m *Microphone) Subscribe() (ports.MicTap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		device, err := m.open(m.format, m.dispatch)
		if err != nil {
			return nil, err
		}
		m.device = device
		m.logger.Debug().Int("sample_rate", m.format.SampleRate).Msg("microphone opened")
	}

	tap := &Tap{mic: m, frames: make(chan []byte, 128)}
	m.taps[tap] = struct{}{}
	return tap, nil
}

// Active reports whether the device is currently held.
func (m *Microphone) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil
}

func (m *Microphone) dispatch(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tap := range m.taps {
		copied := append([]byte(nil), frame...)
		select {
		case tap.frames <- copied:
		default:
			tap.dropped.Add(1)
		}
	}
}

func (m *Microphone) release(tap *Tap) error {
	m.mu.Lock()
	if _, ok := m.taps[tap]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.taps, tap)
	close(tap.frames)

	var device CaptureDevice
	if len(m.taps) == 0 {
		device = m.device
		m.device = nil
	}
	m.mu.Unlock()

	if dropped := tap.dropped.Load(); dropped > 0 {
		m.logger.Warn().Int64("frames", dropped).Msg("microphone tap dropped frames")
	}
	if device == nil {
		return nil
	}
	// Closed outside the lock: the device may be blocked in dispatch until it stops.
	if err := device.Close(); err != nil {
		return err
	}
	m.logger.Debug().Msg("microphone released")
	return nil
}

// Tap receives a copy of every captured frame until closed.
type Tap struct {
	mic     *Microphone
	frames  chan []byte
	dropped atomic.Int64
	once    sync.Once
	err     error
}

var _ ports.MicTap = (*Tap)(nil)

func (t *Tap) Frames() <-chan []byte { return t.frames }

func (t *Tap) Format() ports.AudioFormat { return t.mic.format }

// Close is idempotent.
func (t *Tap) Close() error {
	t.once.Do(func() {
		t.err = t.mic.release(t)
	})
	return t.err
}

var errNoCaptureDevice = errors.New("no device available for capture")
