package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// WAVHeaderSize is the size of the canonical PCM WAV header
const WAVHeaderSize = 44

const (
	wavFormatPCM     = 1
	wavBitsPerSample = 16
	maxWAVDataSize   = math.MaxUint32 - 36
)

// WAVHeader holds the fields of a canonical 44-byte PCM WAV header
type WAVHeader struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// NewWAVHeader builds a 16-bit PCM header for the given data size
func NewWAVHeader(sampleRate, channels int, dataSize uint32) WAVHeader {
	return WAVHeader{
		RIFFSize:      36 + dataSize,
		AudioFormat:   wavFormatPCM,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: wavBitsPerSample,
		DataSize:      dataSize,
	}
}

// Bytes encodes the header in little-endian byte order
func (h WAVHeader) Bytes() []byte {
	b := make([]byte, WAVHeaderSize)
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], h.RIFFSize)
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.Channels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], h.DataSize)
	return b
}

// ParseWAVHeader decodes a canonical 44-byte PCM WAV header
func ParseWAVHeader(b []byte) (WAVHeader, error) {
	if len(b) < WAVHeaderSize {
		return WAVHeader{}, fmt.Errorf("wav header too short: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return WAVHeader{}, errors.New("not a RIFF/WAVE file")
	}
	if string(b[12:16]) != "fmt " || binary.LittleEndian.Uint32(b[16:20]) != 16 {
		return WAVHeader{}, errors.New("unexpected fmt chunk")
	}
	if string(b[36:40]) != "data" {
		return WAVHeader{}, errors.New("data chunk does not follow fmt chunk")
	}
	return WAVHeader{
		RIFFSize:      binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataSize:      binary.LittleEndian.Uint32(b[40:44]),
	}, nil
}

// ReadWAVHeader reads and decodes the header of the file at path
func ReadWAVHeader(path string) (WAVHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVHeader{}, err
	}
	defer f.Close()

	b := make([]byte, WAVHeaderSize)
	if _, err := io.ReadFull(f, b); err != nil {
		return WAVHeader{}, fmt.Errorf("failed to read wav header: %w", err)
	}
	return ParseWAVHeader(b)
}

type writerState int

const (
	writerOpen writerState = iota
	writerWriting
	writerFinalized
	writerCancelled
	writerFailed
)

func (s writerState) String() string {
	switch s {
	case writerOpen:
		return "open"
	case writerWriting:
		return "writing"
	case writerFinalized:
		return "finalized"
	case writerCancelled:
		return "cancelled"
	case writerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WAVWriter streams 16-bit PCM into a WAV file whose length is unknown
// up front. The header is written with a zero data size and patched by
// Finalize once the stream has ended.
type WAVWriter struct {
	path       string
	file       *os.File
	sampleRate int
	channels   int
	samples    int64
	state      writerState
	buf        []byte
}

// CreateWAV creates the file at path and writes the placeholder header
func CreateWAV(path string, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: %dHz/%dch", sampleRate, channels)
	}
	if path == "" {
		return nil, errors.New("wav output path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	if _, err := f.Write(NewWAVHeader(sampleRate, channels, 0).Bytes()); err != nil {
		f.Close()
		os.Remove(abs)
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}

	return &WAVWriter{
		path:       abs,
		file:       f,
		sampleRate: sampleRate,
		channels:   channels,
		state:      writerOpen,
	}, nil
}

// Path returns the absolute path of the file being written
func (w *WAVWriter) Path() string {
	return w.path
}

// Samples returns the number of samples written so far
func (w *WAVWriter) Samples() int64 {
	return w.samples
}

// Write appends whole frames of interleaved samples
func (w *WAVWriter) Write(samples []int16) error {
	if w.state != writerOpen && w.state != writerWriting {
		return fmt.Errorf("wav writer is %s", w.state)
	}
	if len(samples)%w.channels != 0 {
		return fmt.Errorf("partial frame: %d samples for %d channels", len(samples), w.channels)
	}
	if len(samples) == 0 {
		return nil
	}
	if (w.samples+int64(len(samples)))*2 > maxWAVDataSize {
		return errors.New("wav data size limit reached")
	}

	n := len(samples) * 2
	if cap(w.buf) < n {
		w.buf = make([]byte, n)
	}
	buf := w.buf[:n]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	if _, err := w.file.Write(buf); err != nil {
		w.fail()
		return fmt.Errorf("failed to write samples: %w", err)
	}
	w.samples += int64(len(samples))
	w.state = writerWriting
	return nil
}

// Finalize patches the header with the real sizes and closes the file
func (w *WAVWriter) Finalize() (WriterResult, error) {
	if w.state != writerOpen && w.state != writerWriting {
		return WriterResult{}, fmt.Errorf("cannot finalize wav writer that is %s", w.state)
	}

	dataSize := uint32(w.samples * 2)
	header := NewWAVHeader(w.sampleRate, w.channels, dataSize).Bytes()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.fail()
		return WriterResult{}, fmt.Errorf("failed to seek to wav header: %w", err)
	}
	if _, err := w.file.Write(header); err != nil {
		w.fail()
		return WriterResult{}, fmt.Errorf("failed to rewrite wav header: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		w.state = writerFailed
		return WriterResult{}, fmt.Errorf("failed to close wav file: %w", err)
	}

	info, err := os.Stat(w.path)
	if err != nil {
		w.state = writerFailed
		return WriterResult{}, fmt.Errorf("failed to stat wav file: %w", err)
	}

	w.state = writerFinalized
	return WriterResult{
		Path:       w.path,
		DurationMs: w.samples * 1000 / int64(w.sampleRate*w.channels),
		SizeBytes:  info.Size(),
		DataBytes:  int64(dataSize),
	}, nil
}

// Cancel closes and deletes the file. It is best-effort and never fails.
// A finalized file is left in place.
func (w *WAVWriter) Cancel() {
	if w.state == writerFinalized || w.state == writerCancelled {
		return
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	os.Remove(w.path)
	w.state = writerCancelled
}

func (w *WAVWriter) fail() {
	w.state = writerFailed
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}
