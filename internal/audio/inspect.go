package audio

import (
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// silenceDBFS is reported for files without any non-zero sample
const silenceDBFS = -96.3

// WAVInfo summarises a recorded WAV file
type WAVInfo struct {
	Path       string        `json:"path" yaml:"path"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Channels   int           `json:"channels" yaml:"channels"`
	BitDepth   int           `json:"bit_depth" yaml:"bit_depth"`
	DataBytes  int64         `json:"data_bytes" yaml:"data_bytes"`
	FileSize   int64         `json:"file_size" yaml:"file_size"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Peak       int           `json:"peak" yaml:"peak"`
	PeakDBFS   float64       `json:"peak_dbfs" yaml:"peak_dbfs"`
	Consistent bool          `json:"consistent" yaml:"consistent"`
}

// Inspect reads the header of a WAV file and scans its samples for the peak level.
// Consistent reports whether the header's data size matches the file size.
func Inspect(path string) (WAVInfo, error) {
	header, err := ReadWAVHeader(path)
	if err != nil {
		return WAVInfo{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return WAVInfo{}, err
	}

	info := WAVInfo{
		Path:       path,
		SampleRate: int(header.SampleRate),
		Channels:   int(header.Channels),
		BitDepth:   int(header.BitsPerSample),
		DataBytes:  int64(header.DataSize),
		FileSize:   st.Size(),
		PeakDBFS:   silenceDBFS,
		Consistent: int64(header.DataSize) == st.Size()-WAVHeaderSize,
	}
	if header.ByteRate > 0 {
		info.Duration = time.Duration(int64(header.DataSize) * int64(time.Second) / int64(header.ByteRate))
	}
	if header.DataSize == 0 || header.BitsPerSample != wavBitsPerSample {
		return info, nil
	}

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return info, fmt.Errorf("failed to decode wav info: %w", err)
	}
	if err := d.FwdToPCM(); err != nil {
		return info, fmt.Errorf("failed to locate pcm data: %w", err)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: int(d.NumChans), SampleRate: int(d.SampleRate)},
		Data:           make([]int, 4096),
		SourceBitDepth: int(d.BitDepth),
	}
	for {
		n, err := d.PCMBuffer(buf)
		if err != nil {
			return info, fmt.Errorf("failed to read pcm data: %w", err)
		}
		if n == 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			if v < 0 {
				v = -v
			}
			if v > info.Peak {
				info.Peak = v
			}
		}
	}

	if info.Peak > 0 {
		info.PeakDBFS = 20 * math.Log10(float64(info.Peak)/32768)
	}
	return info, nil
}
