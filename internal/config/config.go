package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends lists the capture backend names accepted in capture.backend
var Backends = []string{"auto", "miniaudio", "portaudio", "pipewire", "synth"}

type Config struct {
	ActiveProfile string               `mapstructure:"active_profile" yaml:"active_profile,omitempty"`
	Recorder      audio.RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Capture       CaptureConfig        `mapstructure:"capture" yaml:"capture"`
	Output        OutputConfig         `mapstructure:"output" yaml:"output"`
	Session       SessionConfig        `mapstructure:"session" yaml:"session"`
	Log           LogConfig            `mapstructure:"log" yaml:"log"`
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	Profiles      map[string]*Profile  `mapstructure:"profiles" yaml:"profiles,omitempty"`

	// Profile is the name of the profile applied by Load, if any
	Profile string `mapstructure:"-" yaml:"-"`
}

type CaptureConfig struct {
	Backend    string      `mapstructure:"backend" yaml:"backend"` // see Backends
	Device     string      `mapstructure:"device" yaml:"device"`   // backend specific, empty selects the default input
	Realtime   bool        `mapstructure:"realtime" yaml:"realtime"`
	Permission string      `mapstructure:"permission" yaml:"permission"` // granted, denied, restricted, undetermined
	Synth      SynthConfig `mapstructure:"synth" yaml:"synth"`
}

// SynthConfig drives the hardware-free test tone backend
type SynthConfig struct {
	Frequency  float64 `mapstructure:"frequency" yaml:"frequency"`
	Amplitude  float64 `mapstructure:"amplitude" yaml:"amplitude"`
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int     `mapstructure:"channels" yaml:"channels"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type SessionConfig struct {
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	EventBuffer int    `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// Profile overrides part of the configuration. Zero values inherit.
type Profile struct {
	Recorder audio.RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Capture  ProfileCapture       `mapstructure:"capture" yaml:"capture"`
	Output   OutputConfig         `mapstructure:"output" yaml:"output"`
}

type ProfileCapture struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Device  string `mapstructure:"device" yaml:"device"`
}

// DefaultPath is the config file used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/speechcapture.yaml")
}

func setDefaults(v *viper.Viper) {
	rec := audio.DefaultRecorderConfig()
	v.SetDefault("active_profile", "")
	v.SetDefault("recorder.sample_rate", rec.SampleRate)
	v.SetDefault("recorder.channels", rec.Channels)
	v.SetDefault("recorder.chunk_size", rec.ChunkSize)
	v.SetDefault("recorder.output_path", "")
	v.SetDefault("recorder.audio_source", string(rec.AudioSource))

	v.SetDefault("capture.backend", "auto")
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.realtime", true)
	v.SetDefault("capture.permission", string(audio.PermissionGranted))
	v.SetDefault("capture.synth.frequency", 440.0)
	v.SetDefault("capture.synth.amplitude", 0.3)
	v.SetDefault("capture.synth.sample_rate", 48000)
	v.SetDefault("capture.synth.channels", 2)

	v.SetDefault("output.directory", "~/Audio/SpeechCapture")
	v.SetDefault("session.stop_timeout", audio.DefaultStopTimeout)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.event_buffer", 256)
}

// Load reads configFile (if not empty) over the defaults, applies SPEECHCAPTURE_*
// environment overrides and the selected profile, then validates the result.
// An empty profile selects active_profile from the file.
func Load(configFile, profile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPEECHCAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	name := profile
	if name == "" {
		name = cfg.ActiveProfile
	}
	if name != "" {
		p, ok := cfg.Profiles[name]
		if !ok || p == nil {
			return nil, fmt.Errorf("configuration profile '%s' not found", name)
		}
		applyProfile(&cfg, p)
		cfg.Profile = name
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Recorder.OutputPath = expandPath(cfg.Recorder.OutputPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	cfg.normalizeRecorder()

	return &cfg, nil
}

// applyProfile overrides every non-zero profile value
func applyProfile(cfg *Config, p *Profile) {
	if p.Recorder.SampleRate != 0 {
		cfg.Recorder.SampleRate = p.Recorder.SampleRate
	}
	if p.Recorder.Channels != 0 {
		cfg.Recorder.Channels = p.Recorder.Channels
	}
	if p.Recorder.ChunkSize != 0 {
		cfg.Recorder.ChunkSize = p.Recorder.ChunkSize
	}
	if p.Recorder.OutputPath != "" {
		cfg.Recorder.OutputPath = p.Recorder.OutputPath
	}
	if p.Recorder.AudioSource != "" {
		cfg.Recorder.AudioSource = p.Recorder.AudioSource
	}
	if p.Capture.Backend != "" {
		cfg.Capture.Backend = p.Capture.Backend
	}
	if p.Capture.Device != "" {
		cfg.Capture.Device = p.Capture.Device
	}
	if p.Output.Directory != "" {
		cfg.Output.Directory = p.Output.Directory
	}
}

// Validate rejects settings the program cannot run with. Recorder values are
// not checked here since the recorder falls back to defaults on its own.
func (c *Config) Validate() error {
	c.Capture.Backend = strings.ToLower(strings.TrimSpace(c.Capture.Backend))
	if !isValidBackend(c.Capture.Backend) {
		return fmt.Errorf("capture.backend must be one of %s, got: %s", strings.Join(Backends, ", "), c.Capture.Backend)
	}

	switch audio.PermissionStatus(c.Capture.Permission) {
	case audio.PermissionGranted, audio.PermissionDenied, audio.PermissionRestricted, audio.PermissionUndetermined:
	default:
		return fmt.Errorf("capture.permission must be granted, denied, restricted or undetermined, got: %s", c.Capture.Permission)
	}

	if c.Capture.Synth.Frequency <= 0 {
		return fmt.Errorf("capture.synth.frequency must be > 0, got: %.2f", c.Capture.Synth.Frequency)
	}
	if c.Capture.Synth.Amplitude < 0 || c.Capture.Synth.Amplitude > 1 {
		return fmt.Errorf("capture.synth.amplitude must be between 0 and 1, got: %.2f", c.Capture.Synth.Amplitude)
	}
	if c.Capture.Synth.SampleRate <= 0 || c.Capture.Synth.Channels <= 0 {
		return fmt.Errorf("capture.synth needs a positive sample_rate and channels")
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if c.Session.StopTimeout <= 0 {
		return fmt.Errorf("session.stop_timeout must be > 0, got: %s", c.Session.StopTimeout)
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.EventBuffer < 0 {
		return fmt.Errorf("server.event_buffer must be >= 0, got: %d", c.Server.EventBuffer)
	}

	return nil
}

// normalizeRecorder replaces invalid recorder values with their defaults
func (c *Config) normalizeRecorder() {
	fixed := c.Recorder.WithDefaults()
	if fixed.SampleRate != c.Recorder.SampleRate {
		slog.Warn("Unsupported sample rate, using default", "sample_rate", c.Recorder.SampleRate, "default", fixed.SampleRate)
	}
	if fixed.Channels != c.Recorder.Channels {
		slog.Warn("Unsupported channel count, using default", "channels", c.Recorder.Channels, "default", fixed.Channels)
	}
	if fixed.ChunkSize != c.Recorder.ChunkSize {
		slog.Warn("Invalid chunk size, using default", "chunk_size", c.Recorder.ChunkSize, "default", fixed.ChunkSize)
	}
	if fixed.AudioSource != c.Recorder.AudioSource {
		slog.Warn("Unknown audio source hint, using default", "audio_source", c.Recorder.AudioSource, "default", fixed.AudioSource)
	}
	c.Recorder = fixed
}

// LoadDotEnv exports the variables of the given .env files (".env" when none
// are given) without overriding the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("error loading env file %s: %w", p, err)
		}
	}
	return nil
}

func isValidBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
