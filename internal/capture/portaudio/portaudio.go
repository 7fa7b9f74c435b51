// Package portaudio captures from an input device through PortAudio's
// blocking stream API.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/capture/sched"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio input device
type Device struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// Source reads 32-bit frames from a PortAudio stream on a dedicated
// goroutine locked to its OS thread.
type Source struct {
	device          string
	format          audio.NativeFormat
	framesPerBuffer int
	realtime        bool

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int32
	quit   chan struct{}
	done   chan struct{}
}

// New builds a source for cfg. PortAudio is initialised by Start.
func New(device string, cfg audio.RecorderConfig) *Source {
	return &Source{
		device: device,
		format: audio.NativeFormat{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Encoding:   audio.EncodingS32LE,
		},
		framesPerBuffer: cfg.ChunkSize,
	}
}

func (s *Source) Format() audio.NativeFormat {
	return s.format
}

// RequestRealtime raises the priority of the reader thread when it starts
func (s *Source) RequestRealtime() error {
	if !sched.Supported() {
		return errors.ErrUnsupported
	}
	s.mu.Lock()
	s.realtime = true
	s.mu.Unlock()
	return nil
}

func (s *Source) Start(onFrames audio.FrameFunc, onFault audio.FaultFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return errors.New("portaudio stream already started")
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := s.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = s.format.Channels
	params.SampleRate = float64(s.format.SampleRate)
	params.FramesPerBuffer = s.framesPerBuffer

	buf := make([]int32, s.framesPerBuffer*s.format.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open portaudio stream on %s: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start portaudio stream: %w", err)
	}

	s.stream = stream
	s.buf = buf
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(stream, buf, s.quit, s.done, s.realtime, onFrames, onFault)

	slog.Debug("PortAudio capture started", "device", dev.Name, "format", s.format.String())
	return nil
}

// readLoop blocks in Stream.Read and delivers each buffer as s32le bytes
func (s *Source) readLoop(stream *portaudio.Stream, buf []int32, quit, done chan struct{}, realtime bool, onFrames audio.FrameFunc, onFault audio.FaultFunc) {
	defer close(done)

	// the thread is discarded when the goroutine exits locked
	runtime.LockOSThread()
	if realtime {
		if err := sched.RaiseCurrentThread(); err != nil {
			slog.Debug("Capture thread priority not raised", "error", err)
		}
	}

	frames := len(buf) / s.format.Channels
	out := make([]byte, len(buf)*4)
	for {
		select {
		case <-quit:
			return
		default:
		}

		err := stream.Read()
		select {
		case <-quit:
			return
		default:
		}
		if err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("PortAudio input overflowed")
			} else {
				onFault(fmt.Errorf("read portaudio stream: %w", err))
				return
			}
		}

		for i, v := range buf {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
		onFrames(out, frames)
	}
}

// Stop ends the read loop and releases the stream. The blocking Read returns
// once the stream is stopped.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}

	close(s.quit)
	stopErr := s.stream.Abort()
	<-s.done

	var errs []error
	if stopErr != nil {
		errs = append(errs, fmt.Errorf("abort portaudio stream: %w", stopErr))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close portaudio stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	s.stream = nil
	s.buf = nil
	return errors.Join(errs...)
}

func (s *Source) inputDevice() (*portaudio.DeviceInfo, error) {
	if s.device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == s.device && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", s.device)
}

// ListDevices enumerates devices with at least one input channel
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	var devices []Device
	for _, info := range infos {
		if info.MaxInputChannels == 0 {
			continue
		}
		d := Device{
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           info.Name == defaultName,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices = append(devices, d)
	}
	return devices, nil
}
