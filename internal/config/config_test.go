package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"

	"gopkg.in/yaml.v3"
)

// Helper function to create temporary config file for testing
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speechcapture-test.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Recorder != audio.DefaultRecorderConfig() {
		t.Errorf("Expected default recorder config, got %+v", cfg.Recorder)
	}
	if cfg.Capture.Backend != "auto" {
		t.Errorf("Expected backend 'auto', got '%s'", cfg.Capture.Backend)
	}
	if cfg.Session.StopTimeout != time.Second {
		t.Errorf("Expected stop timeout 1s, got %s", cfg.Session.StopTimeout)
	}
	if strings.HasPrefix(cfg.Output.Directory, "~") {
		t.Errorf("Expected expanded output directory, got '%s'", cfg.Output.Directory)
	}
	if cfg.Server.Port != 8080 || cfg.Server.EventBuffer != 256 {
		t.Errorf("Unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Profile != "" {
		t.Errorf("Expected no profile, got '%s'", cfg.Profile)
	}
}

func TestLoad_File(t *testing.T) {
	configContent := `
recorder:
    sample_rate: 48000
    channels: 2
    chunk_size: 480
    audio_source: voiceCommunication
capture:
    backend: PipeWire
    device: alsa_input.usb-mic
    realtime: false
output:
    directory: /data/recordings
session:
    stop_timeout: 2500ms
log:
    file: ~/logs/speechcapture.log
    max_size_mb: 5
server:
    port: 9090
`
	cfg, err := Load(createTempConfig(t, configContent), "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	want := audio.RecorderConfig{SampleRate: 48000, Channels: 2, ChunkSize: 480, AudioSource: audio.SourceVoiceCommunication}
	if cfg.Recorder != want {
		t.Errorf("Expected recorder %+v, got %+v", want, cfg.Recorder)
	}
	if cfg.Capture.Backend != "pipewire" {
		t.Errorf("Expected lower-cased backend 'pipewire', got '%s'", cfg.Capture.Backend)
	}
	if cfg.Capture.Device != "alsa_input.usb-mic" || cfg.Capture.Realtime {
		t.Errorf("Unexpected capture config: %+v", cfg.Capture)
	}
	if cfg.Output.Directory != "/data/recordings" {
		t.Errorf("Expected directory '/data/recordings', got '%s'", cfg.Output.Directory)
	}
	if cfg.Session.StopTimeout != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s stop timeout, got %s", cfg.Session.StopTimeout)
	}
	if strings.HasPrefix(cfg.Log.File, "~") || !strings.HasSuffix(cfg.Log.File, "logs/speechcapture.log") {
		t.Errorf("Expected expanded log file, got '%s'", cfg.Log.File)
	}
	if cfg.Log.MaxSizeMB != 5 || cfg.Log.MaxBackups != 3 {
		t.Errorf("Expected file value with default fallback, got %+v", cfg.Log)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_InvalidRecorderValuesFallBack(t *testing.T) {
	configContent := `
recorder:
    sample_rate: 22050
    channels: 6
    chunk_size: -1
    audio_source: camcorder
`
	cfg, err := Load(createTempConfig(t, configContent), "")
	if err != nil {
		t.Fatalf("Recorder values must not fail loading: %v", err)
	}
	if cfg.Recorder != audio.DefaultRecorderConfig() {
		t.Errorf("Expected defaults, got %+v", cfg.Recorder)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown backend", "capture:\n    backend: coreaudio\n", "capture.backend"},
		{"bad permission", "capture:\n    permission: maybe\n", "capture.permission"},
		{"bad port", "server:\n    port: 70000\n", "server.port"},
		{"negative buffer", "server:\n    event_buffer: -1\n", "server.event_buffer"},
		{"zero stop timeout", "session:\n    stop_timeout: 0s\n", "session.stop_timeout"},
		{"negative log rotation", "log:\n    max_backups: -2\n", "log rotation"},
		{"bad amplitude", "capture:\n    synth:\n        amplitude: 1.5\n", "amplitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(createTempConfig(t, tt.content), "")
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing '%s', got: %v", tt.errMsg, err)
			}
		})
	}
}

const profilesConfig = `
active_profile: dictation
recorder:
    sample_rate: 16000
capture:
    backend: miniaudio
output:
    directory: /global/recordings
profiles:
    dictation:
        recorder:
            audio_source: voiceRecognition
    meeting:
        recorder:
            sample_rate: 48000
            channels: 2
        capture:
            backend: synth
        output:
            directory: /meetings
`

func TestLoad_ActiveProfile(t *testing.T) {
	cfg, err := Load(createTempConfig(t, profilesConfig), "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Profile != "dictation" {
		t.Errorf("Expected active profile 'dictation', got '%s'", cfg.Profile)
	}
	if cfg.Recorder.SampleRate != 16000 || cfg.Capture.Backend != "miniaudio" {
		t.Errorf("Expected inherited values, got %+v %+v", cfg.Recorder, cfg.Capture)
	}
	if cfg.Output.Directory != "/global/recordings" {
		t.Errorf("Expected inherited directory, got '%s'", cfg.Output.Directory)
	}
}

func TestLoad_ExplicitProfileOverrides(t *testing.T) {
	cfg, err := Load(createTempConfig(t, profilesConfig), "meeting")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Profile != "meeting" {
		t.Errorf("Expected profile 'meeting', got '%s'", cfg.Profile)
	}
	if cfg.Recorder.SampleRate != 48000 || cfg.Recorder.Channels != 2 {
		t.Errorf("Expected profile recorder values, got %+v", cfg.Recorder)
	}
	if cfg.Recorder.ChunkSize != audio.DefaultChunkSize {
		t.Errorf("Expected inherited chunk size, got %d", cfg.Recorder.ChunkSize)
	}
	if cfg.Capture.Backend != "synth" || cfg.Output.Directory != "/meetings" {
		t.Errorf("Expected profile capture and output, got %+v %+v", cfg.Capture, cfg.Output)
	}
}

func TestLoad_UnknownProfile(t *testing.T) {
	_, err := Load(createTempConfig(t, profilesConfig), "podcast")
	if err == nil || !strings.Contains(err.Error(), "profile 'podcast' not found") {
		t.Errorf("Expected unknown profile error, got: %v", err)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("SPEECHCAPTURE_SERVER_PORT", "7001")
	t.Setenv("SPEECHCAPTURE_CAPTURE_BACKEND", "synth")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Expected port 7001 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Capture.Backend != "synth" {
		t.Errorf("Expected backend 'synth' from environment, got '%s'", cfg.Capture.Backend)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "SPEECHCAPTURE_SERVER_EVENT_BUFFER"
	if _, ok := os.LookupEnv(key); ok {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=512\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Server.EventBuffer != 512 {
		t.Errorf("Expected event buffer 512 from .env, got %d", cfg.Server.EventBuffer)
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg, err := Load(createTempConfig(t, profilesConfig), "meeting")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if !strings.Contains(string(out), "sample_rate: 48000") {
		t.Errorf("Expected marshaled recorder settings, got:\n%s", out)
	}

	reloaded, err := Load(createTempConfig(t, string(out)), "")
	if err != nil {
		t.Fatalf("Failed to reload marshaled config: %v", err)
	}
	if reloaded.Recorder != cfg.Recorder || reloaded.Capture.Backend != cfg.Capture.Backend {
		t.Errorf("Reloaded config differs: %+v vs %+v", reloaded.Recorder, cfg.Recorder)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/SpeechCapture", filepath.Join(home, "Audio/SpeechCapture")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, test := range tests {
		if result := expandPath(test.input); result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}
