// Package miniaudio captures from the system input device through miniaudio.
package miniaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/audiolibrelab/speechcapture/internal/audio"

	"github.com/gen2brain/malgo"
)

// Device describes a capture device known to miniaudio
type Device struct {
	ID      string
	Name    string
	Default bool
}

// Source is an audio.CaptureSource backed by a malgo capture device.
// The device is opened in the session format; miniaudio converts from the
// hardware format internally.
type Source struct {
	device    string
	format    audio.NativeFormat
	periodLen uint32
	priority  malgo.ThreadPriority

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	// dmu serialises the data callback against Stop
	dmu      sync.Mutex
	onFrames audio.FrameFunc
	onFault  audio.FaultFunc
}

// New builds a source for cfg. Nothing is opened until Start.
func New(device string, cfg audio.RecorderConfig) *Source {
	return &Source{
		device: device,
		format: audio.NativeFormat{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Encoding:   audio.EncodingS16LE,
		},
		periodLen: uint32(cfg.ChunkSize),
		priority:  malgo.ThreadPriorityDefault,
	}
}

func (s *Source) Format() audio.NativeFormat {
	return s.format
}

// RequestRealtime asks miniaudio to run its capture thread at real-time
// priority. It takes effect on the next Start.
func (s *Source) RequestRealtime() error {
	s.mu.Lock()
	s.priority = malgo.ThreadPriorityRealtime
	s.mu.Unlock()
	return nil
}

func (s *Source) Start(onFrames audio.FrameFunc, onFault audio.FaultFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return errors.New("capture device already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: s.priority}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("init miniaudio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.format.Channels)
	deviceConfig.SampleRate = uint32(s.format.SampleRate)
	deviceConfig.PeriodSizeInFrames = s.periodLen

	if s.device != "" {
		info, err := findDevice(ctx, s.device)
		if err != nil {
			uninitContext(ctx)
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	s.dmu.Lock()
	s.onFrames = onFrames
	s.onFault = onFault
	s.dmu.Unlock()

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	}
	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		s.clearCallbacks()
		uninitContext(ctx)
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		s.clearCallbacks()
		dev.Uninit()
		uninitContext(ctx)
		return fmt.Errorf("start capture device: %w", err)
	}

	s.ctx = ctx
	s.dev = dev
	slog.Debug("miniaudio capture started", "device", s.device, "format", s.format.String())
	return nil
}

// Stop halts the device. Once it returns the data callback no longer runs.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearCallbacks()

	if s.dev == nil {
		return nil
	}

	var err error
	if stopErr := s.dev.Stop(); stopErr != nil {
		err = fmt.Errorf("stop capture device: %w", stopErr)
	}
	s.dev.Uninit()
	s.dev = nil

	uninitContext(s.ctx)
	s.ctx = nil
	return err
}

func (s *Source) onData(_, input []byte, frameCount uint32) {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if s.onFrames == nil {
		return
	}
	s.onFrames(input, int(frameCount))
}

// onStop runs when miniaudio stops the device, which includes device loss
func (s *Source) onStop() {
	s.dmu.Lock()
	fault := s.onFault
	s.dmu.Unlock()
	if fault != nil {
		// onFault is cleared before a requested stop, so this is a device loss
		go fault(errors.New("capture device stopped unexpectedly"))
	}
}

func (s *Source) clearCallbacks() {
	s.dmu.Lock()
	s.onFrames = nil
	s.onFault = nil
	s.dmu.Unlock()
}

// ListDevices enumerates capture devices
func ListDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init miniaudio context: %w", err)
	}
	defer uninitContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:      info.ID.String(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func findDevice(ctx *malgo.AllocatedContext, name string) (malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name || info.ID.String() == name {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("capture device not found: %s", name)
}

func uninitContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	if err := ctx.Uninit(); err != nil {
		slog.Debug("Failed to uninit miniaudio context", "error", err)
	}
	ctx.Free()
}
