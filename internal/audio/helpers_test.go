package audio

import (
	"sync"
	"testing"
	"time"
)

// fakeSource is a capture source driven by the test goroutine, which plays
// the role of the capture thread.
type fakeSource struct {
	format   NativeFormat
	startErr error
	stopHook func()
	onStart  func(fn FrameFunc)

	mu       sync.Mutex
	onFrames FrameFunc
	onFault  FaultFunc
	started  int
	stopped  int
}

func newFakeSource(rate, channels int) *fakeSource {
	return &fakeSource{format: NativeFormat{SampleRate: rate, Channels: channels, Encoding: EncodingS16LE}}
}

func (f *fakeSource) Format() NativeFormat { return f.format }

func (f *fakeSource) Start(onFrames FrameFunc, onFault FaultFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.onStart != nil {
		f.onStart(onFrames)
	}
	f.mu.Lock()
	f.onFrames = onFrames
	f.onFault = onFault
	f.started++
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	f.onFrames = nil
	f.onFault = nil
	f.stopped++
	hook := f.stopHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// push delivers samples as one native buffer and reports whether the source was running
func (f *fakeSource) push(samples []int16) bool {
	f.mu.Lock()
	fn := f.onFrames
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(EncodeS16LE(samples), len(samples)/f.format.Channels)
	return true
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	fn := f.onFault
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeSource) counts() (started, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// eventLog collects every event published by a recorder
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) chunks() []AudioChunk {
	var out []AudioChunk
	for _, e := range l.ofType(EventAudioData) {
		out = append(out, *e.Chunk)
	}
	return out
}

func ramp(n int, start int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = start + int16(i%1000)
	}
	return out
}

func waitForState(t *testing.T, r *Recorder, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected state %s, still %s", want, r.State())
}

// waitForEvents polls until at least n events of type et were published
func waitForEvents(t *testing.T, l *eventLog, et EventType, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(l.ofType(et)) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d %s events, got %d", n, et, len(l.ofType(et)))
}
