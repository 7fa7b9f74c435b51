// Package pipewire captures audio by running pw-record and reading raw
// samples from its stdout.
package pipewire

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"
)

// DefaultStopTimeout bounds the wait for pw-record to exit after SIGINT
const DefaultStopTimeout = 2 * time.Second

// Source is an audio.CaptureSource backed by a pw-record child process
type Source struct {
	target      string
	role        string
	format      audio.NativeFormat
	chunkBytes  int
	stopTimeout time.Duration

	// newCmd builds the capture command from pw-record arguments
	newCmd func(args []string) *exec.Cmd

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stopping bool
	done     chan struct{}

	errMu  sync.Mutex
	stderr strings.Builder
}

// New builds a source recording from target (a node name or serial, empty
// for the default source) in the session format of cfg
func New(target string, cfg audio.RecorderConfig) *Source {
	format := audio.NativeFormat{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Encoding:   audio.EncodingS16LE,
	}
	return &Source{
		target:      target,
		role:        mediaRole(cfg.AudioSource),
		format:      format,
		chunkBytes:  cfg.ChunkSize * format.FrameBytes(),
		stopTimeout: DefaultStopTimeout,
		newCmd: func(args []string) *exec.Cmd {
			return exec.Command("pw-record", args...)
		},
	}
}

func (s *Source) Format() audio.NativeFormat {
	return s.format
}

// Args returns the pw-record arguments for this source
func (s *Source) Args() []string {
	args := []string{
		"--rate", strconv.Itoa(s.format.SampleRate),
		"--channels", strconv.Itoa(s.format.Channels),
		"--format", "s16",
		"--raw",
	}
	if s.target != "" {
		args = append(args, "--target", s.target)
	}
	if s.role != "" {
		args = append(args, "--media-role", s.role)
	}
	return append(args, "-")
}

func (s *Source) Start(onFrames audio.FrameFunc, onFault audio.FaultFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return errors.New("pw-record already running")
	}

	args := s.Args()
	cmd := s.newCmd(args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	s.errMu.Lock()
	s.stderr.Reset()
	s.errMu.Unlock()
	cmd.Stderr = &lockedWriter{mu: &s.errMu, b: &s.stderr}

	slog.Info("Starting PipeWire capture", "command", cmd.Path+" "+strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pw-record: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.stopping = false
	s.done = make(chan struct{})
	go s.readLoop(stdout, s.done, onFrames, onFault)
	return nil
}

// readLoop delivers whole frames read from stdout until EOF
func (s *Source) readLoop(r io.Reader, done chan struct{}, onFrames audio.FrameFunc, onFault audio.FaultFunc) {
	defer close(done)

	fb := s.format.FrameBytes()
	buf := make([]byte, s.chunkBytes)
	pending := 0
	for {
		n, err := r.Read(buf[pending:])
		pending += n
		if whole := pending - pending%fb; whole > 0 && pending == len(buf) || whole > 0 && err != nil {
			onFrames(buf[:whole], whole/fb)
			pending = copy(buf, buf[whole:pending])
		}
		if err == nil {
			continue
		}

		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()
		s.errMu.Lock()
		stderr := strings.TrimSpace(s.stderr.String())
		s.errMu.Unlock()
		if stopping {
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("pw-record exited")
		}
		if stderr != "" {
			err = fmt.Errorf("%w: %s", err, stderr)
		}
		onFault(err)
		return
	}
}

// Stop sends SIGINT to pw-record, waits for it to exit and kills it after
// the stop timeout. No frame is delivered once Stop returns.
func (s *Source) Stop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	if cmd == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to pw-record")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt pw-record, killing", "error", err)
			cmd.Process.Kill()
		}
	}

	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		slog.Warn("pw-record did not exit within timeout, force killing")
		cmd.Process.Kill()
		<-done
	}

	err := cmd.Wait()
	s.mu.Lock()
	s.cmd = nil
	s.stdout = nil
	s.mu.Unlock()

	if err != nil && !interruptedExit(err) {
		return fmt.Errorf("pw-record failed: %w", err)
	}
	return nil
}

// interruptedExit reports whether err is the expected result of SIGINT or SIGKILL
func interruptedExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 || exitErr.ExitCode() == 130 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// mediaRole maps an audio source hint to a PipeWire media.role
func mediaRole(hint audio.AudioSourceHint) string {
	switch hint {
	case audio.SourceVoiceCommunication, audio.SourceVoiceRecognition:
		return "Communication"
	case audio.SourceMic:
		return "Production"
	default:
		return ""
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	b  *strings.Builder
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.b.Len() < 4096 {
		w.b.Write(p)
	}
	return len(p), nil
}
