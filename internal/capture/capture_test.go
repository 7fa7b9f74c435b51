package capture

import (
	"testing"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/config"
)

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		backend  string
		expected BackendType
	}{
		{"", BackendTypeMiniaudio},
		{"auto", BackendTypeMiniaudio},
		{"miniaudio", BackendTypeMiniaudio},
		{"PortAudio", BackendTypePortAudio},
		{"pipewire", BackendTypePipeWire},
		{"synth", BackendTypeSynth},
	}
	for _, tt := range tests {
		got, err := determineBackend(config.CaptureConfig{Backend: tt.backend})
		if err != nil {
			t.Errorf("determineBackend(%q) failed: %v", tt.backend, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("determineBackend(%q) = %s, expected %s", tt.backend, got, tt.expected)
		}
	}

	if _, err := determineBackend(config.CaptureConfig{Backend: "coreaudio"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestDetermineBackend_CoversConfigBackends(t *testing.T) {
	for _, name := range config.Backends {
		if _, err := determineBackend(config.CaptureConfig{Backend: name}); err != nil {
			t.Errorf("Config accepts backend %q but capture does not: %v", name, err)
		}
	}
}

func TestNewSourceFactory_Synth(t *testing.T) {
	factory, err := NewSourceFactory(config.CaptureConfig{
		Backend: "synth",
		Synth:   config.SynthConfig{Frequency: 220, Amplitude: 0.1, SampleRate: 44100, Channels: 1},
	})
	if err != nil {
		t.Fatalf("NewSourceFactory failed: %v", err)
	}

	src, err := factory(audio.DefaultRecorderConfig())
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	f := src.Format()
	if f.SampleRate != 44100 || f.Channels != 1 || f.Encoding != audio.EncodingF32LE {
		t.Errorf("Unexpected synth format %s", f)
	}
	if _, ok := src.(audio.RealtimeScheduler); !ok {
		t.Error("Expected synth source to accept real-time requests")
	}
}

func TestNewSourceFactory_SessionFormat(t *testing.T) {
	rc := audio.RecorderConfig{SampleRate: 44100, Channels: 2, ChunkSize: 512}

	tests := []struct {
		backend  string
		encoding audio.SampleEncoding
	}{
		{"miniaudio", audio.EncodingS16LE},
		{"portaudio", audio.EncodingS32LE},
	}
	for _, tt := range tests {
		factory, err := NewSourceFactory(config.CaptureConfig{Backend: tt.backend})
		if err != nil {
			t.Fatalf("NewSourceFactory(%s) failed: %v", tt.backend, err)
		}
		// building a source must not touch the hardware
		src, err := factory(rc)
		if err != nil {
			t.Fatalf("Factory %s failed: %v", tt.backend, err)
		}
		f := src.Format()
		if f.SampleRate != 44100 || f.Channels != 2 || f.Encoding != tt.encoding {
			t.Errorf("%s: unexpected format %s", tt.backend, f)
		}
		if err := src.Stop(); err != nil {
			t.Errorf("%s: Stop before Start failed: %v", tt.backend, err)
		}
	}
}

func TestNewPermissionChecker(t *testing.T) {
	if got := NewPermissionChecker(config.CaptureConfig{Permission: "granted"}).Check(); got != audio.PermissionGranted {
		t.Errorf("Expected granted, got %s", got)
	}
	if got := NewPermissionChecker(config.CaptureConfig{}).Check(); got != audio.PermissionGranted {
		t.Errorf("Expected granted by default, got %s", got)
	}
	if got := NewPermissionChecker(config.CaptureConfig{Permission: "denied"}).Check(); got != audio.PermissionDenied {
		t.Errorf("Expected denied, got %s", got)
	}
}

func TestListDevices_Synth(t *testing.T) {
	backend, devices, err := ListDevices(config.CaptureConfig{Backend: "synth", Synth: config.SynthConfig{Frequency: 440}})
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if backend != BackendTypeSynth || len(devices) != 1 || !devices[0].Default {
		t.Errorf("Unexpected synth devices: %s %+v", backend, devices)
	}
}
