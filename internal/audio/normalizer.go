package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Normalizer converts native capture buffers into interleaved 16-bit PCM at
// the session's sample rate and channel count.
//
// Resampling is linear. The fractional read position and the last frame of
// the previous buffer are carried between calls so consecutive buffers of a
// session join without discontinuities.
type Normalizer struct {
	in          NativeFormat
	outRate     int
	outChannels int

	step  float64
	phase float64
	prev  []int16
}

// NewNormalizer prepares a normalizer from the native format to cfg
func NewNormalizer(in NativeFormat, cfg RecorderConfig) (*Normalizer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("invalid target format: %dHz/%dch", cfg.SampleRate, cfg.Channels)
	}
	return &Normalizer{
		in:          in,
		outRate:     cfg.SampleRate,
		outChannels: cfg.Channels,
		step:        float64(in.SampleRate) / float64(cfg.SampleRate),
	}, nil
}

// Passthrough reports whether native buffers already match the target format
func (n *Normalizer) Passthrough() bool {
	return n.in.Encoding == EncodingS16LE && n.in.SampleRate == n.outRate && n.in.Channels == n.outChannels
}

// Reset drops the carried resampler state
func (n *Normalizer) Reset() {
	n.phase = 0
	n.prev = nil
}

// Process converts one native buffer. Trailing bytes that do not form a
// whole frame are ignored. The returned slice is newly allocated and always
// holds whole output frames.
func (n *Normalizer) Process(data []byte) []int16 {
	fb := n.in.FrameBytes()
	frames := len(data) / fb
	if frames == 0 {
		return nil
	}
	samples := decodeSamples(data[:frames*fb], n.in.Encoding)
	if n.Passthrough() {
		return samples
	}

	mapped := mapChannels(samples, n.in.Channels, n.outChannels)
	if n.in.SampleRate == n.outRate {
		return mapped
	}
	return n.resample(mapped)
}

func (n *Normalizer) resample(x []int16) []int16 {
	ch := n.outChannels
	frames := len(x) / ch
	out := make([]int16, 0, (int(float64(frames)/n.step)+2)*ch)

	t := n.phase
	for {
		i := int(math.Floor(t))
		frac := t - float64(i)
		if i > frames-1 || (frac > 0 && i+1 > frames-1) {
			break
		}
		for c := 0; c < ch; c++ {
			a := float64(n.frameSample(x, i, c))
			v := a
			if frac > 0 {
				b := float64(x[(i+1)*ch+c])
				v = a + (b-a)*frac
			}
			out = append(out, clampInt16(math.Round(v)))
		}
		t += n.step
	}

	n.phase = t - float64(frames)
	if n.prev == nil {
		n.prev = make([]int16, ch)
	}
	copy(n.prev, x[(frames-1)*ch:])
	return out
}

// frameSample returns channel c of frame i, where frame -1 is the last frame
// of the previous buffer.
func (n *Normalizer) frameSample(x []int16, i, c int) int16 {
	if i < 0 {
		if n.prev == nil {
			return x[c]
		}
		return n.prev[c]
	}
	return x[i*n.outChannels+c]
}

func decodeSamples(data []byte, enc SampleEncoding) []int16 {
	switch enc {
	case EncodingS16LE:
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out
	case EncodingS32LE:
		out := make([]int16, len(data)/4)
		for i := range out {
			out[i] = int16(int32(binary.LittleEndian.Uint32(data[i*4:])) >> 16)
		}
		return out
	case EncodingF32LE:
		out := make([]int16, len(data)/4)
		for i := range out {
			f := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
			if math.IsNaN(f) {
				continue
			}
			out[i] = clampInt16(math.Round(f * 32767))
		}
		return out
	default:
		return nil
	}
}

func mapChannels(in []int16, from, to int) []int16 {
	if from == to {
		return in
	}
	frames := len(in) / from
	out := make([]int16, frames*to)
	for f := 0; f < frames; f++ {
		src := in[f*from : (f+1)*from]
		dst := out[f*to : (f+1)*to]
		switch {
		case to == 1:
			var sum int32
			for _, s := range src {
				sum += int32(s)
			}
			dst[0] = int16(sum / int32(from))
		case from == 1:
			for c := range dst {
				dst[c] = src[0]
			}
		default:
			for c := range dst {
				dst[c] = src[c%from]
			}
		}
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// EncodeS16LE serializes samples as little-endian 16-bit PCM
func EncodeS16LE(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
