package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"interviewdesk/internal/ports"
)

type malgoCapture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
	err    error
}

// OpenMalgoCapture opens the default capture device as signed 16-bit PCM.
func OpenMalgoCapture(format ports.AudioFormat, onData func(frame []byte)) (CaptureDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err == nil && len(infos) == 0 {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, errNoCaptureDevice
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			if len(pInputSamples) > 0 {
				onData(pInputSamples)
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	return &malgoCapture{ctx: ctx, device: device}, nil
}

func (c *malgoCapture) Close() error {
	c.once.Do(func() {
		if err := c.device.Stop(); err != nil {
			c.err = fmt.Errorf("failed to stop microphone: %w", err)
		}
		c.device.Uninit()
		_ = c.ctx.Uninit()
		c.ctx.Free()
	})
	return c.err
}
