package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Stop and Cancel wait for the capture thread
const DefaultStopTimeout = time.Second

// Options wires the platform capabilities into a Recorder
type Options struct {
	Sources     SourceFactory
	Writers     WriterFactory
	Permissions PermissionChecker

	// OutputDir receives generated recordings when a config has no OutputPath
	OutputDir   string
	StopTimeout time.Duration

	// Realtime asks sources implementing RealtimeScheduler for real-time scheduling
	Realtime bool

	Now func() time.Time
}

// Recorder is the capture session orchestrator. It owns at most one
// session at a time and drives it through the lifecycle state machine.
//
// Control methods are serialised; State, Duration and ActiveDuration never
// wait for an in-flight control call.
type Recorder struct {
	opts Options
	bus  *EventBus

	ctrl sync.Mutex

	mu      sync.RWMutex
	state   State
	session *captureSession
	config  RecorderConfig
}

type captureSession struct {
	cfg        RecorderConfig
	source     CaptureSource
	normalizer *Normalizer
	writer     PersistentWriter
	emitter    *ChunkEmitter
	startedAt  time.Time

	// gate serialises buffer delivery against pause and teardown
	gate     sync.Mutex
	emitting bool
	closed   bool

	// guarded by Recorder.mu
	pausedAt  time.Time
	pausedFor time.Duration
}

// NewRecorder creates an idle recorder
func NewRecorder(opts Options) *Recorder {
	if opts.Writers == nil {
		opts.Writers = NewWAVWriterFactory()
	}
	if opts.Permissions == nil {
		opts.Permissions = AlwaysGranted{}
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Recorder{
		opts:  opts,
		bus:   NewEventBus(),
		state: StateIdle,
	}
}

// Events returns the bus every recorder event is published on
func (r *Recorder) Events() *EventBus {
	return r.bus
}

// Subscribe registers a listener for all recorder events
func (r *Recorder) Subscribe(l Listener) (unsubscribe func()) {
	return r.bus.Subscribe(l)
}

// State returns the current lifecycle state
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Config returns the normalized config of the current or last session
func (r *Recorder) Config() RecorderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Duration returns the wall-clock time elapsed since the session started,
// paused intervals included. It is zero when no session exists.
func (r *Recorder) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return 0
	}
	return r.opts.Now().Sub(r.session.startedAt)
}

// ActiveDuration is like Duration but excludes time spent paused
func (r *Recorder) ActiveDuration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.session
	if s == nil {
		return 0
	}
	now := r.opts.Now()
	d := now.Sub(s.startedAt) - s.pausedFor
	if !s.pausedAt.IsZero() {
		d -= now.Sub(s.pausedAt)
	}
	return d
}

// CheckPermission reports the current capture permission
func (r *Recorder) CheckPermission() PermissionStatus {
	return r.opts.Permissions.Check()
}

// RequestPermission asks the platform for capture permission
func (r *Recorder) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	return r.opts.Permissions.Request(ctx)
}

// Start prepares a new session from IDLE or STOPPED and begins recording.
// Invalid config values fall back to their defaults.
func (r *Recorder) Start(cfg RecorderConfig) error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	state := r.State()
	if !state.canStart() {
		return invalidState("start", state)
	}
	if status := r.opts.Permissions.Check(); status != PermissionGranted {
		return &Error{Code: CodePermissionDenied, Op: "start", Err: fmt.Errorf("microphone permission %s", status)}
	}

	cfg = cfg.WithDefaults()
	if cfg.OutputPath == "" {
		cfg.OutputPath = GenerateOutputPath(r.opts.OutputDir, r.opts.Now())
	}

	r.setState(StatePreparing)

	if r.opts.Sources == nil {
		return r.failStart(&Error{Code: CodeHardware, Op: "start", Err: fmt.Errorf("no capture source configured")})
	}

	source, err := r.opts.Sources(cfg)
	if err != nil {
		return r.failStart(hardwareError("create capture source", err))
	}
	normalizer, err := NewNormalizer(source.Format(), cfg)
	if err != nil {
		source.Stop()
		return r.failStart(hardwareError("unsupported capture format", err))
	}
	writer, err := r.opts.Writers(cfg)
	if err != nil {
		source.Stop()
		return r.failStart(fileError("open output file", err))
	}

	if r.opts.Realtime {
		if rt, ok := source.(RealtimeScheduler); ok {
			if err := rt.RequestRealtime(); err != nil {
				slog.Debug("Real-time scheduling request not honoured", "error", err)
			}
		}
	}

	sess := &captureSession{
		cfg:        cfg,
		source:     source,
		normalizer: normalizer,
		writer:     writer,
		startedAt:  r.opts.Now(),
	}
	sess.emitter = NewChunkEmitter(r.bus, writer, sess.startedAt, r.opts.Now)

	r.mu.Lock()
	r.session = sess
	r.config = cfg
	r.mu.Unlock()

	err = source.Start(
		func(data []byte, frames int) { r.deliver(sess, data) },
		func(err error) { r.fault(sess, err) },
	)
	if err != nil {
		writer.Cancel()
		r.clearSession()
		return r.failStart(hardwareError("start capture", err))
	}

	r.setState(StateRecording)
	sess.setEmitting(true)

	slog.Info("Recording started",
		"path", writer.Path(),
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"chunk_size", cfg.ChunkSize,
		"native_format", source.Format().String())
	return nil
}

// Pause suppresses chunk emission and file writes while the capture thread keeps running
func (r *Recorder) Pause() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	r.mu.RLock()
	state, s := r.state, r.session
	r.mu.RUnlock()
	if state != StateRecording || s == nil {
		return invalidState("pause", state)
	}

	s.setEmitting(false)

	r.mu.Lock()
	s.pausedAt = r.opts.Now()
	r.mu.Unlock()

	r.setState(StatePaused)
	return nil
}

// Resume re-enables emission after Pause
func (r *Recorder) Resume() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	r.mu.RLock()
	state, s := r.state, r.session
	r.mu.RUnlock()
	if state != StatePaused || s == nil {
		return invalidState("resume", state)
	}

	r.mu.Lock()
	s.pausedFor += r.opts.Now().Sub(s.pausedAt)
	s.pausedAt = time.Time{}
	r.mu.Unlock()

	r.setState(StateRecording)

	s.gate.Lock()
	s.normalizer.Reset()
	s.emitting = true
	s.gate.Unlock()
	return nil
}

// Stop halts capture, waits for the capture thread and finalizes the file
func (r *Recorder) Stop() (RecordingResult, error) {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	r.mu.RLock()
	state, s := r.state, r.session
	r.mu.RUnlock()
	if !state.isActive() || s == nil {
		return RecordingResult{}, invalidState("stop", state)
	}

	s.close()
	r.setState(StateStopping)
	r.stopSource(s)

	res, err := s.writer.Finalize()
	r.clearSession()
	if err != nil {
		ferr := fileError("finalize recording", err)
		r.enterError(ferr)
		return RecordingResult{}, ferr
	}

	r.setState(StateStopped)

	result := RecordingResult{
		Path:          res.Path,
		DurationMs:    res.DurationMs,
		FileSizeBytes: res.SizeBytes,
		SampleRate:    s.cfg.SampleRate,
		Channels:      s.cfg.Channels,
	}
	slog.Info("Recording stopped",
		"path", result.Path,
		"duration_ms", result.DurationMs,
		"size", result.FileSizeBytes,
		"chunks", s.emitter.Emitted())
	return result, nil
}

// Cancel halts capture and deletes the partial file. From ERROR it is the
// explicit reset back to IDLE.
func (r *Recorder) Cancel() error {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	r.mu.RLock()
	state, s := r.state, r.session
	r.mu.RUnlock()

	switch {
	case state.isActive() && s != nil:
		s.close()
		r.setState(StateStopping)
		r.teardown(s)
		r.setState(StateStopped)
		slog.Info("Recording cancelled", "path", s.writer.Path())
		return nil
	case state == StateError:
		if s != nil {
			r.teardown(s)
		}
		r.setState(StateIdle)
		return nil
	default:
		return invalidState("cancel", state)
	}
}

// Close stops an active session, keeping its recording. It is meant for
// process shutdown and does nothing when no session is active.
func (r *Recorder) Close() error {
	if !r.State().isActive() {
		return nil
	}
	_, err := r.Stop()
	if CodeOf(err) == CodeInvalidState {
		return nil
	}
	return err
}

// deliver runs on the capture thread for every native buffer
func (r *Recorder) deliver(s *captureSession, data []byte) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if !s.emitting || s.closed {
		return
	}

	samples := s.normalizer.Process(data)
	if len(samples) == 0 {
		return
	}
	if _, err := s.emitter.Emit(samples); err != nil {
		s.emitting = false
		s.closed = true
		go r.handleFault(s, fileError("write samples", err))
	}
}

// fault is the capture source's asynchronous failure callback
func (r *Recorder) fault(s *captureSession, err error) {
	s.close()
	go r.handleFault(s, hardwareError("capture", err))
}

// handleFault tears a failed session down and moves the recorder to ERROR.
// A session already stopped or cancelled by a control call is left alone.
func (r *Recorder) handleFault(s *captureSession, err error) {
	r.ctrl.Lock()
	defer r.ctrl.Unlock()

	r.mu.RLock()
	state, current := r.state, r.session
	r.mu.RUnlock()
	if current != s || !state.isActive() {
		return
	}

	slog.Error("Capture session failed", "error", err, "path", s.writer.Path())
	r.stopSource(s)
	if CodeOf(err) == CodeHardware {
		// samples written before a device fault are still a valid recording
		if res, ferr := s.writer.Finalize(); ferr == nil {
			slog.Info("Partial recording kept", "path", res.Path, "duration_ms", res.DurationMs)
		} else {
			s.writer.Cancel()
		}
	} else {
		s.writer.Cancel()
	}
	r.clearSession()
	r.enterError(err)
}

func (r *Recorder) teardown(s *captureSession) {
	s.close()
	r.stopSource(s)
	s.writer.Cancel()
	r.clearSession()
}

// stopSource stops the capture thread, waiting at most StopTimeout. The
// session gate is already closed, so a late delivery cannot reach the writer.
func (r *Recorder) stopSource(s *captureSession) {
	done := make(chan error, 1)
	go func() { done <- s.source.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("Capture source did not stop cleanly", "error", err)
		}
	case <-time.After(r.opts.StopTimeout):
		slog.Warn("Capture source did not stop within timeout", "timeout", r.opts.StopTimeout)
	}
}

func (r *Recorder) failStart(err error) error {
	slog.Error("Failed to start recording", "error", err)
	r.enterError(err)
	return err
}

func (r *Recorder) clearSession() {
	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
}

func (r *Recorder) setState(next State) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()

	if prev == next {
		return
	}
	slog.Debug("Recorder state changed", "from", prev, "to", next)
	r.bus.Publish(Event{Type: EventStateChange, OldState: prev, NewState: next})
}

func (r *Recorder) enterError(err error) {
	r.setState(StateError)
	r.bus.Publish(Event{Type: EventError, Code: CodeOf(err), Message: err.Error()})
}

func (s *captureSession) setEmitting(on bool) {
	s.gate.Lock()
	s.emitting = on
	s.gate.Unlock()
}

// close waits for an in-flight delivery and blocks all further ones
func (s *captureSession) close() {
	s.gate.Lock()
	s.emitting = false
	s.closed = true
	s.gate.Unlock()
}
