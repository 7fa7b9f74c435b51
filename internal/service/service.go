package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/capture"
	"github.com/audiolibrelab/speechcapture/internal/config"
)

// ErrRecordingNotFound is returned for recording names that do not resolve to a WAV file
// in the output directory
var ErrRecordingNotFound = errors.New("recording not found")

// Service represents the core SpeechCapture service interface
type Service interface {
	// Session control
	Start(overrides audio.RecorderConfig) error
	Pause() error
	Resume() error
	Stop() (audio.RecordingResult, error)
	Cancel() error
	GetStatus() Status

	// Permissions
	CheckPermission() audio.PermissionStatus
	RequestPermission(ctx context.Context) (audio.PermissionStatus, error)

	// Events
	Subscribe(l audio.Listener) (unsubscribe func())
	SubscribeChan(buffer int) *audio.Subscription

	// Recordings
	ListRecordings() ([]RecordingInfo, error)
	RecordingPath(name string) (string, error)

	// Configuration
	LoadProfile(profile string) error
	GetConfig() *config.Config
	GetLastError() string

	Close() error
}

// Status is a snapshot of the recorder and the last session outcome
type Status struct {
	State            audio.State            `json:"state"`
	DurationMs       int64                  `json:"durationMs"`
	ActiveDurationMs int64                  `json:"activeDurationMs"`
	Backend          string                 `json:"backend"`
	Config           *audio.RecorderConfig  `json:"config,omitempty"`
	LastResult       *audio.RecordingResult `json:"lastResult,omitempty"`
	LastError        string                 `json:"lastError,omitempty"`
}

// RecordingInfo describes a WAV file in the output directory
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	DurationMs   int64     `json:"duration_ms"`
	SampleRate   int       `json:"sample_rate"`
	Channels     int       `json:"channels"`
	Complete     bool      `json:"complete"`
	DownloadURL  string    `json:"download_url"`
}

// SpeechCaptureService is the main service implementation
type SpeechCaptureService struct {
	configFile string
	newOptions func(cfg *config.Config) (audio.Options, error)

	// events outlive recorder swaps on profile reload
	bus *audio.EventBus

	mu       sync.RWMutex
	cfg      *config.Config
	recorder *audio.Recorder
	unlisten func()

	lastResult *audio.RecordingResult

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service whose recorder uses the configured capture backend
func New(cfg *config.Config, configFile string) (Service, error) {
	return newService(cfg, configFile, RecorderOptions)
}

func newService(cfg *config.Config, configFile string, newOptions func(*config.Config) (audio.Options, error)) (*SpeechCaptureService, error) {
	s := &SpeechCaptureService{
		configFile: configFile,
		newOptions: newOptions,
		bus:        audio.NewEventBus(),
	}
	if err := s.install(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// RecorderOptions maps the configuration onto recorder options
func RecorderOptions(cfg *config.Config) (audio.Options, error) {
	sources, err := capture.NewSourceFactory(cfg.Capture)
	if err != nil {
		return audio.Options{}, err
	}
	return audio.Options{
		Sources:     sources,
		Permissions: capture.NewPermissionChecker(cfg.Capture),
		OutputDir:   cfg.Output.Directory,
		StopTimeout: cfg.Session.StopTimeout,
		Realtime:    cfg.Capture.Realtime,
	}, nil
}

// install builds a recorder for cfg and swaps it in
func (s *SpeechCaptureService) install(cfg *config.Config) error {
	opts, err := s.newOptions(cfg)
	if err != nil {
		return err
	}
	rec := audio.NewRecorder(opts)
	unlisten := rec.Subscribe(audio.ListenerFunc(s.forward))

	s.mu.Lock()
	old, oldUnlisten := s.recorder, s.unlisten
	s.cfg, s.recorder, s.unlisten = cfg, rec, unlisten
	s.mu.Unlock()

	if old != nil {
		oldUnlisten()
		if err := old.Close(); err != nil {
			slog.Warn("Failed to close previous recorder", "error", err)
		}
	}
	return nil
}

// forward relays recorder events to service subscribers
func (s *SpeechCaptureService) forward(e audio.Event) {
	if e.Type == audio.EventError {
		s.setLastError(e.Message)
	}
	s.bus.Publish(e)
}

func (s *SpeechCaptureService) rec() *audio.Recorder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorder
}

// Start begins a session. Non-zero fields of overrides replace the configured recorder settings.
func (s *SpeechCaptureService) Start(overrides audio.RecorderConfig) error {
	s.mu.RLock()
	rc := mergeRecorderConfig(s.cfg.Recorder, overrides)
	rec := s.recorder
	s.mu.RUnlock()

	slog.Debug("Service.Start called", "sample_rate", rc.SampleRate, "channels", rc.Channels, "output_path", rc.OutputPath)
	s.clearLastError()
	if err := rec.Start(rc); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	return nil
}

// Pause pauses the active session
func (s *SpeechCaptureService) Pause() error {
	return s.rec().Pause()
}

// Resume resumes a paused session
func (s *SpeechCaptureService) Resume() error {
	return s.rec().Resume()
}

// Stop finalizes the active session and remembers its result
func (s *SpeechCaptureService) Stop() (audio.RecordingResult, error) {
	res, err := s.rec().Stop()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return res, err
	}
	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()
	s.clearLastError()
	return res, nil
}

// Cancel discards the active session
func (s *SpeechCaptureService) Cancel() error {
	err := s.rec().Cancel()
	if err == nil {
		s.clearLastError()
	}
	return err
}

// GetStatus returns the current recorder state and the last session outcome
func (s *SpeechCaptureService) GetStatus() Status {
	s.mu.RLock()
	rec := s.recorder
	backend := s.cfg.Capture.Backend
	last := s.lastResult
	s.mu.RUnlock()

	st := Status{
		State:            rec.State(),
		DurationMs:       rec.Duration().Milliseconds(),
		ActiveDurationMs: rec.ActiveDuration().Milliseconds(),
		Backend:          backend,
		LastResult:       last,
		LastError:        s.GetLastError(),
	}
	switch st.State {
	case audio.StateRecording, audio.StatePaused, audio.StateStopping:
		rc := rec.Config()
		st.Config = &rc
	}
	return st
}

// CheckPermission reports the capture permission status
func (s *SpeechCaptureService) CheckPermission() audio.PermissionStatus {
	return s.rec().CheckPermission()
}

// RequestPermission asks for capture permission
func (s *SpeechCaptureService) RequestPermission(ctx context.Context) (audio.PermissionStatus, error) {
	return s.rec().RequestPermission(ctx)
}

// Subscribe registers a synchronous listener for recorder events
func (s *SpeechCaptureService) Subscribe(l audio.Listener) (unsubscribe func()) {
	return s.bus.Subscribe(l)
}

// SubscribeChan registers a buffered channel subscription for recorder events
func (s *SpeechCaptureService) SubscribeChan(buffer int) *audio.Subscription {
	return s.bus.SubscribeChan(buffer)
}

// ListRecordings returns the WAV files in the output directory, newest first
func (s *SpeechCaptureService) ListRecordings() ([]RecordingInfo, error) {
	dir := s.GetConfig().Output.Directory

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RecordingInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	recordings := []RecordingInfo{}
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".wav") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		rec := RecordingInfo{
			Name:         file.Name(),
			Path:         filepath.Join(dir, file.Name()),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			DownloadURL:  fmt.Sprintf("/api/recordings/download/%s", file.Name()),
		}

		header, err := audio.ReadWAVHeader(rec.Path)
		if err != nil {
			slog.Debug("Skipping unreadable WAV header", "file", file.Name(), "error", err)
		} else {
			rec.SampleRate = int(header.SampleRate)
			rec.Channels = int(header.Channels)
			rec.Complete = int64(header.DataSize) == info.Size()-audio.WAVHeaderSize
			if header.ByteRate > 0 {
				rec.DurationMs = int64(header.DataSize) * 1000 / int64(header.ByteRate)
			}
		}

		recordings = append(recordings, rec)
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].ModTime.After(recordings[j].ModTime)
	})
	return recordings, nil
}

// RecordingPath resolves a recording name to its path in the output directory
func (s *SpeechCaptureService) RecordingPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".wav") {
		return "", fmt.Errorf("%w: %s", ErrRecordingNotFound, name)
	}
	path := filepath.Join(s.GetConfig().Output.Directory, name)
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRecordingNotFound, name)
	}
	return path, nil
}

// LoadProfile reloads the configuration with a profile and rebuilds the recorder.
// It is refused while a session is in progress.
func (s *SpeechCaptureService) LoadProfile(profile string) error {
	if state := s.rec().State(); state != audio.StateIdle && state != audio.StateStopped && state != audio.StateError {
		return &audio.Error{Code: audio.CodeInvalidState, Op: "load profile", State: state}
	}

	newCfg, err := config.Load(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	if err := s.install(newCfg); err != nil {
		return fmt.Errorf("failed to apply profile '%s': %w", profile, err)
	}
	slog.Info("Configuration profile loaded", "profile", profile, "backend", newCfg.Capture.Backend)
	return nil
}

// GetConfig returns the current configuration
func (s *SpeechCaptureService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close stops an active session, keeping its recording
func (s *SpeechCaptureService) Close() error {
	switch s.rec().State() {
	case audio.StateRecording, audio.StatePaused:
	default:
		return nil
	}
	_, err := s.Stop()
	if audio.CodeOf(err) == audio.CodeInvalidState {
		return nil
	}
	return err
}

// GetLastError returns the last error message (thread-safe)
func (s *SpeechCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *SpeechCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *SpeechCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

func mergeRecorderConfig(base, o audio.RecorderConfig) audio.RecorderConfig {
	if o.SampleRate != 0 {
		base.SampleRate = o.SampleRate
	}
	if o.Channels != 0 {
		base.Channels = o.Channels
	}
	if o.ChunkSize != 0 {
		base.ChunkSize = o.ChunkSize
	}
	if o.OutputPath != "" {
		base.OutputPath = o.OutputPath
	}
	if o.AudioSource != "" {
		base.AudioSource = o.AudioSource
	}
	return base
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
