// Package capture selects and builds the platform capture backend.
package capture

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/capture/miniaudio"
	"github.com/audiolibrelab/speechcapture/internal/capture/pipewire"
	"github.com/audiolibrelab/speechcapture/internal/capture/portaudio"
	"github.com/audiolibrelab/speechcapture/internal/capture/synth"
	"github.com/audiolibrelab/speechcapture/internal/config"
)

// BackendType represents the type of capture backend
type BackendType string

const (
	BackendTypeAuto      BackendType = "auto"
	BackendTypeMiniaudio BackendType = "miniaudio"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeSynth     BackendType = "synth"
)

// Device is a capture device as reported by a backend
type Device struct {
	Backend BackendType `json:"backend" yaml:"backend"`
	Name    string      `json:"name" yaml:"name"`
	ID      string      `json:"id,omitempty" yaml:"id,omitempty"`
	Detail  string      `json:"detail,omitempty" yaml:"detail,omitempty"`
	Default bool        `json:"default" yaml:"default"`
}

// NewSourceFactory returns the factory the recorder uses to build one
// capture source per session
func NewSourceFactory(cfg config.CaptureConfig) (audio.SourceFactory, error) {
	backend, err := determineBackend(cfg)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendTypeMiniaudio:
		return func(rc audio.RecorderConfig) (audio.CaptureSource, error) {
			return miniaudio.New(cfg.Device, rc), nil
		}, nil
	case BackendTypePortAudio:
		return func(rc audio.RecorderConfig) (audio.CaptureSource, error) {
			return portaudio.New(cfg.Device, rc), nil
		}, nil
	case BackendTypePipeWire:
		ports := pipewire.NewPorts()
		return func(rc audio.RecorderConfig) (audio.CaptureSource, error) {
			if err := ports.ValidateTarget(cfg.Device); err != nil {
				return nil, err
			}
			return pipewire.New(cfg.Device, rc), nil
		}, nil
	case BackendTypeSynth:
		opts := synth.Options{
			Frequency:  cfg.Synth.Frequency,
			Amplitude:  cfg.Synth.Amplitude,
			SampleRate: cfg.Synth.SampleRate,
			Channels:   cfg.Synth.Channels,
		}
		return func(audio.RecorderConfig) (audio.CaptureSource, error) {
			return synth.New(opts), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported capture backend: %s", backend)
	}
}

// NewPermissionChecker maps the configured permission to a checker. Desktop
// platforms have no capture permission model, so the value is static.
func NewPermissionChecker(cfg config.CaptureConfig) audio.PermissionChecker {
	status := audio.PermissionStatus(cfg.Permission)
	if status == "" || status == audio.PermissionGranted {
		return audio.AlwaysGranted{}
	}
	return audio.StaticPermissions{Status: status}
}

// determineBackend resolves "auto" to the backend used on this platform
func determineBackend(cfg config.CaptureConfig) (BackendType, error) {
	switch BackendType(strings.ToLower(cfg.Backend)) {
	case "", BackendTypeAuto:
		return BackendTypeMiniaudio, nil
	case BackendTypeMiniaudio:
		return BackendTypeMiniaudio, nil
	case BackendTypePortAudio:
		return BackendTypePortAudio, nil
	case BackendTypePipeWire:
		return BackendTypePipeWire, nil
	case BackendTypeSynth:
		return BackendTypeSynth, nil
	default:
		return "", fmt.Errorf("unknown capture backend: %s", cfg.Backend)
	}
}

// ListDevices returns the capture devices of the configured backend
func ListDevices(cfg config.CaptureConfig) (BackendType, []Device, error) {
	backend, err := determineBackend(cfg)
	if err != nil {
		return "", nil, err
	}

	var devices []Device
	switch backend {
	case BackendTypeMiniaudio:
		infos, err := miniaudio.ListDevices()
		if err != nil {
			return backend, nil, err
		}
		for _, d := range infos {
			devices = append(devices, Device{Backend: backend, Name: d.Name, ID: d.ID, Default: d.Default})
		}
	case BackendTypePortAudio:
		infos, err := portaudio.ListDevices()
		if err != nil {
			return backend, nil, err
		}
		for _, d := range infos {
			devices = append(devices, Device{
				Backend: backend,
				Name:    d.Name,
				Detail:  fmt.Sprintf("%s, %d ch, %.0f Hz", d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate),
				Default: d.Default,
			})
		}
	case BackendTypePipeWire:
		ports, err := pipewire.NewPorts().ListCapturePorts()
		if err != nil {
			return backend, nil, err
		}
		for _, p := range ports {
			d := Device{Backend: backend, Name: p}
			if pipewire.IsApplicationPort(p) {
				d.Detail = "application"
			}
			devices = append(devices, d)
		}
	case BackendTypeSynth:
		devices = append(devices, Device{
			Backend: backend,
			Name:    "synth",
			Detail:  fmt.Sprintf("%.0f Hz tone", cfg.Synth.Frequency),
			Default: true,
		})
	}
	return backend, devices, nil
}
