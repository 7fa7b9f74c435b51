package audio

import (
	"errors"
	"testing"
	"time"
)

type memWriter struct {
	written [][]int16
	err     error
}

func (w *memWriter) Write(samples []int16) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, samples)
	return nil
}

func (w *memWriter) Finalize() (WriterResult, error) { return WriterResult{}, nil }
func (w *memWriter) Cancel()                         {}
func (w *memWriter) Path() string                    { return "mem" }

type chunkRecorder struct {
	chunks []AudioChunk
}

func (c *chunkRecorder) OnChunk(chunk AudioChunk) {
	c.chunks = append(c.chunks, chunk)
}

func TestChunkEmitter_SequenceAndTimestamps(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	listener := &chunkRecorder{}
	writer := &memWriter{}
	e := NewChunkEmitter(listener, writer, start, clock.Now)

	for i := 0; i < 3; i++ {
		clock.Advance(64 * time.Millisecond)
		c, err := e.Emit(ramp(1024, 0))
		if err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
		if c.SequenceNumber != uint64(i) {
			t.Errorf("Expected sequence %d, got %d", i, c.SequenceNumber)
		}
	}

	if len(listener.chunks) != 3 || len(writer.written) != 3 {
		t.Fatalf("Expected 3 chunks and writes, got %d and %d", len(listener.chunks), len(writer.written))
	}
	for i, c := range listener.chunks {
		if want := int64(64 * (i + 1)); c.TimestampMs != want {
			t.Errorf("Chunk %d: expected timestamp %d, got %d", i, want, c.TimestampMs)
		}
	}
	if e.Emitted() != 3 {
		t.Errorf("Expected 3 emitted, got %d", e.Emitted())
	}
}

func TestChunkEmitter_WriteFailure(t *testing.T) {
	listener := &chunkRecorder{}
	writer := &memWriter{}
	e := NewChunkEmitter(listener, writer, time.Now(), nil)

	if _, err := e.Emit(ramp(10, 0)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	writer.err = errors.New("disk full")
	if _, err := e.Emit(ramp(10, 0)); err == nil {
		t.Fatal("Expected write error")
	}
	writer.err = nil
	c, err := e.Emit(ramp(10, 0))
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if c.SequenceNumber != 1 {
		t.Errorf("Failed emit must not consume a sequence number, got %d", c.SequenceNumber)
	}
	if len(listener.chunks) != 2 {
		t.Errorf("Expected 2 delivered chunks, got %d", len(listener.chunks))
	}
}

func TestChunkEmitter_NilListener(t *testing.T) {
	e := NewChunkEmitter(nil, &memWriter{}, time.Now(), nil)
	if _, err := e.Emit(ramp(4, 0)); err != nil {
		t.Errorf("Emit without listener failed: %v", err)
	}
}
