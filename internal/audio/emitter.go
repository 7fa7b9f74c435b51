package audio

import "time"

// ChunkListener is the single consumer of emitted chunks
type ChunkListener interface {
	OnChunk(c AudioChunk)
}

// ChunkEmitter turns normalized buffers into sequenced, timestamped chunks.
// Each chunk is written to the writer and then handed to the listener before
// the call returns, so chunks never overlap.
type ChunkEmitter struct {
	listener ChunkListener
	writer   PersistentWriter
	start    time.Time
	now      func() time.Time
	next     uint64
}

// NewChunkEmitter creates an emitter whose timestamps are relative to start
func NewChunkEmitter(listener ChunkListener, writer PersistentWriter, start time.Time, now func() time.Time) *ChunkEmitter {
	if now == nil {
		now = time.Now
	}
	return &ChunkEmitter{
		listener: listener,
		writer:   writer,
		start:    start,
		now:      now,
	}
}

// Emit persists samples and forwards them as the next chunk. Nothing is
// emitted and no sequence number is consumed when the write fails.
func (e *ChunkEmitter) Emit(samples []int16) (AudioChunk, error) {
	if err := e.writer.Write(samples); err != nil {
		return AudioChunk{}, err
	}

	chunk := AudioChunk{
		Data:           samples,
		TimestampMs:    e.now().Sub(e.start).Milliseconds(),
		SequenceNumber: e.next,
	}
	e.next++

	if e.listener != nil {
		e.listener.OnChunk(chunk)
	}
	return chunk, nil
}

// Emitted returns the number of chunks emitted so far
func (e *ChunkEmitter) Emitted() uint64 {
	return e.next
}
