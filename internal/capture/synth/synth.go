// Package synth provides a capture source that generates a sine tone in real
// time. It stands in for a microphone on machines without audio hardware.
package synth

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/capture/sched"
)

// DefaultPeriod is the interval between two delivered buffers
const DefaultPeriod = 10 * time.Millisecond

var raisePriority = sched.RaiseCurrentThread

// Options configures the generated signal
type Options struct {
	Frequency  float64
	Amplitude  float64
	SampleRate int
	Channels   int
	Period     time.Duration
}

// Source delivers interleaved f32le sine frames from its own goroutine
type Source struct {
	opts   Options
	format audio.NativeFormat

	mu       sync.Mutex
	realtime bool
	quit     chan struct{}
	done     chan struct{}
	phase    float64
}

// New creates a synth source. Invalid options fall back to a 440Hz tone at
// 48kHz stereo.
func New(opts Options) *Source {
	if opts.Frequency <= 0 {
		opts.Frequency = 440
	}
	if opts.Amplitude < 0 || opts.Amplitude > 1 {
		opts.Amplitude = 0.3
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	return &Source{
		opts: opts,
		format: audio.NativeFormat{
			SampleRate: opts.SampleRate,
			Channels:   opts.Channels,
			Encoding:   audio.EncodingF32LE,
		},
	}
}

func (s *Source) Format() audio.NativeFormat {
	return s.format
}

// RequestRealtime raises the priority of the generator thread when it starts
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

	if s.quit != nil {
		return errors.New("synth source already started")
	}
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.quit, s.done, s.realtime, onFrames)
	return nil
}

// Stop ends generation and waits for the generator goroutine
func (s *Source) Stop() error {
	s.mu.Lock()
	quit, done := s.quit, s.done
	s.quit, s.done = nil, nil
	s.mu.Unlock()

	if quit == nil {
		return nil
	}
	close(quit)
	<-done
	return nil
}

func (s *Source) run(quit, done chan struct{}, realtime bool, onFrames audio.FrameFunc) {
	defer close(done)

	runtime.LockOSThread()
	if realtime {
		if err := raisePriority(); err != nil {
			slog.Debug("Capture thread priority not raised", "error", err)
		}
	}

	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()

	last := time.Now()
	var carry float64
	var buf []byte
	for {
		select {
		case <-quit:
			return
		case now := <-ticker.C:
			// frames owed for the elapsed wall time, so late ticks catch up
			exact := now.Sub(last).Seconds()*float64(s.opts.SampleRate) + carry
			last = now
			frames := int(exact)
			carry = exact - float64(frames)
			if frames == 0 {
				continue
			}
			buf = s.generate(buf, frames)
			onFrames(buf, frames)
		}
	}
}

// generate fills buf with the next frames of the tone
func (s *Source) generate(buf []byte, frames int) []byte {
	ch := s.opts.Channels
	n := frames * ch * 4
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	step := 2 * math.Pi * s.opts.Frequency / float64(s.opts.SampleRate)
	for f := 0; f < frames; f++ {
		v := float32(s.opts.Amplitude * math.Sin(s.phase))
		bits := math.Float32bits(v)
		for c := 0; c < ch; c++ {
			binary.LittleEndian.PutUint32(buf[(f*ch+c)*4:], bits)
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return buf
}
