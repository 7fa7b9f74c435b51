package audio

import "fmt"

// SampleEncoding is the sample representation used by a capture backend
type SampleEncoding string

const (
	EncodingS16LE SampleEncoding = "s16le"
	EncodingS32LE SampleEncoding = "s32le"
	EncodingF32LE SampleEncoding = "f32le"
)

// BytesPerSample returns the width of one sample, or 0 for unknown encodings
func (e SampleEncoding) BytesPerSample() int {
	switch e {
	case EncodingS16LE:
		return 2
	case EncodingS32LE, EncodingF32LE:
		return 4
	default:
		return 0
	}
}

// NativeFormat is the format a capture source delivers frames in
type NativeFormat struct {
	SampleRate int
	Channels   int
	Encoding   SampleEncoding
}

// FrameBytes is the size of one interleaved native frame
func (f NativeFormat) FrameBytes() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// Validate checks that the format can be normalized
func (f NativeFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid native sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid native channel count: %d", f.Channels)
	}
	if f.Encoding.BytesPerSample() == 0 {
		return fmt.Errorf("unsupported native encoding: %q", f.Encoding)
	}
	return nil
}

func (f NativeFormat) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.Encoding)
}

// FrameFunc receives one native buffer on the capture thread.
// data is only valid for the duration of the call.
type FrameFunc func(data []byte, frames int)

// FaultFunc reports an unrecoverable capture-thread failure
type FaultFunc func(err error)

// CaptureSource abstracts the platform microphone capture mechanism.
//
// Start acquires the device and begins delivering buffers on a thread owned
// by the source. A failed Start must not leave resources behind. Stop must not
// return until no further buffer can be delivered; it is safe to call twice.
// Delivered buffer sizes are driven by the hardware and may vary per call.
type CaptureSource interface {
	Format() NativeFormat
	Start(onFrames FrameFunc, onFault FaultFunc) error
	Stop() error
}

// RealtimeScheduler is implemented by sources that can ask the platform for
// real-time scheduling of their delivery thread. The request is best-effort
// and platform dependent; success does not guarantee real-time behaviour.
type RealtimeScheduler interface {
	RequestRealtime() error
}

// SourceFactory builds a capture source for a normalized session config
type SourceFactory func(cfg RecorderConfig) (CaptureSource, error)
