package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWAVHeader_Bytes(t *testing.T) {
	got := NewWAVHeader(16000, 1, 6144).Bytes()
	want := []byte{
		'R', 'I', 'F', 'F', 0x24, 0x18, 0x00, 0x00,
		'W', 'A', 'V', 'E', 'f', 'm', 't', ' ',
		0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x3e, 0x00, 0x00, 0x00, 0x7d, 0x00, 0x00,
		0x02, 0x00, 0x10, 0x00, 'd', 'a', 't', 'a',
		0x00, 0x18, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Header mismatch\n got: % x\nwant: % x", got, want)
	}

	parsed, err := ParseWAVHeader(got)
	if err != nil {
		t.Fatalf("ParseWAVHeader failed: %v", err)
	}
	if parsed != NewWAVHeader(16000, 1, 6144) {
		t.Errorf("Parsed header mismatch: %+v", parsed)
	}
}

func TestParseWAVHeader_Rejects(t *testing.T) {
	valid := NewWAVHeader(8000, 2, 0).Bytes()

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:20] }},
		{"not riff", func(b []byte) []byte { copy(b, "RIFX"); return b }},
		{"bad fmt size", func(b []byte) []byte { b[16] = 18; return b }},
		{"no data chunk", func(b []byte) []byte { copy(b[36:], "LIST"); return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), valid...)
			if _, err := ParseWAVHeader(tt.mutate(b)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestWAVWriter_PlaceholderHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.wav")
	w, err := CreateWAV(path, 16000, 1)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	defer w.Cancel()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected file to exist: %v", err)
	}
	if info.Size() != WAVHeaderSize {
		t.Errorf("Expected %d byte file, got %d", WAVHeaderSize, info.Size())
	}
	h, err := ReadWAVHeader(path)
	if err != nil {
		t.Fatalf("ReadWAVHeader failed: %v", err)
	}
	if h.DataSize != 0 || h.RIFFSize != 36 {
		t.Errorf("Expected zero-length placeholder, got %+v", h)
	}
}

func TestWAVWriter_Finalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := CreateWAV(path, 16000, 1)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := w.Write(ramp(1024, 0)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Write(nil); err != nil {
		t.Errorf("Empty write should be a no-op, got %v", err)
	}

	res, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if res.DurationMs != 192 || res.SizeBytes != 6188 || res.DataBytes != 6144 {
		t.Errorf("Unexpected result: %+v", res)
	}

	h, err := ReadWAVHeader(path)
	if err != nil {
		t.Fatalf("ReadWAVHeader failed: %v", err)
	}
	if h.DataSize != 6144 || h.RIFFSize != 6180 {
		t.Errorf("Header not patched: %+v", h)
	}

	if err := w.Write(ramp(2, 0)); err == nil {
		t.Error("Expected write after finalize to fail")
	}
	if _, err := w.Finalize(); err == nil {
		t.Error("Expected second finalize to fail")
	}
	w.Cancel()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Cancel must not remove a finalized file: %v", err)
	}
}

func TestWAVWriter_DecodesWithGoAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	w, err := CreateWAV(path, 44100, 2)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	samples := []int16{0, 1, -1, 32767, -32768, 1234, 5, -5}
	if err := w.Write(samples); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer failed: %v", err)
	}
	if d.SampleRate != 44100 || d.NumChans != 2 || d.BitDepth != 16 {
		t.Errorf("Unexpected format: %dHz %dch %dbit", d.SampleRate, d.NumChans, d.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(buf.Data))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Errorf("Sample %d: expected %d, got %d", i, s, buf.Data[i])
		}
	}
}

func TestWAVWriter_RejectsPartialFrame(t *testing.T) {
	w, err := CreateWAV(filepath.Join(t.TempDir(), "out.wav"), 16000, 2)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	defer w.Cancel()

	if err := w.Write([]int16{1, 2, 3}); err == nil {
		t.Error("Expected partial frame to be rejected")
	}
	if w.Samples() != 0 {
		t.Errorf("Rejected write must not count samples, got %d", w.Samples())
	}
	if err := w.Write([]int16{1, 2}); err != nil {
		t.Errorf("Writer should remain usable after a rejected write: %v", err)
	}
}

func TestWAVWriter_Cancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := CreateWAV(path, 16000, 1)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	w.Write(ramp(100, 0))
	w.Cancel()
	w.Cancel()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected file to be removed, stat error: %v", err)
	}
	if err := w.Write(ramp(100, 0)); err == nil {
		t.Error("Expected write after cancel to fail")
	}
	if _, err := w.Finalize(); err == nil {
		t.Error("Expected finalize after cancel to fail")
	}
}

func TestCreateWAV_Errors(t *testing.T) {
	if _, err := CreateWAV("", 16000, 1); err == nil {
		t.Error("Expected error for empty path")
	}
	if _, err := CreateWAV(filepath.Join(t.TempDir(), "x.wav"), 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateWAV(filepath.Join(blocker, "out.wav"), 16000, 1); err == nil {
		t.Error("Expected error when the parent is a regular file")
	}
}
