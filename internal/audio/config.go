package audio

import (
	"fmt"
	"path/filepath"
	"time"
)

// AudioSourceHint tells the capture backend what the recording is used for
type AudioSourceHint string

const (
	SourceDefault            AudioSourceHint = "default"
	SourceMic                AudioSourceHint = "mic"
	SourceVoiceRecognition   AudioSourceHint = "voiceRecognition"
	SourceVoiceCommunication AudioSourceHint = "voiceCommunication"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultChunkSize  = 1024
)

// SupportedSampleRates lists the output rates a session can be configured with
var SupportedSampleRates = []int{8000, 16000, 44100, 48000}

// RecorderConfig is the immutable configuration of one capture session
type RecorderConfig struct {
	SampleRate  int             `json:"sampleRate" yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels    int             `json:"channels" yaml:"channels" mapstructure:"channels"`
	ChunkSize   int             `json:"chunkSize" yaml:"chunk_size" mapstructure:"chunk_size"`
	OutputPath  string          `json:"outputPath,omitempty" yaml:"output_path" mapstructure:"output_path"`
	AudioSource AudioSourceHint `json:"audioSource,omitempty" yaml:"audio_source" mapstructure:"audio_source"`
}

// DefaultRecorderConfig returns the configuration used when nothing is specified
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SampleRate:  DefaultSampleRate,
		Channels:    DefaultChannels,
		ChunkSize:   DefaultChunkSize,
		AudioSource: SourceVoiceRecognition,
	}
}

// WithDefaults replaces every invalid field with its default value.
// It never fails; OutputPath is left untouched.
func (c RecorderConfig) WithDefaults() RecorderConfig {
	if !IsSupportedSampleRate(c.SampleRate) {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels != 1 && c.Channels != 2 {
		c.Channels = DefaultChannels
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	switch c.AudioSource {
	case SourceDefault, SourceMic, SourceVoiceRecognition, SourceVoiceCommunication:
	default:
		c.AudioSource = SourceVoiceRecognition
	}
	return c
}

// FrameBytes is the size of one interleaved 16-bit frame
func (c RecorderConfig) FrameBytes() int {
	return c.Channels * 2
}

// ChunkDuration is the nominal duration of one requested buffer
func (c RecorderConfig) ChunkDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.ChunkSize) * time.Second / time.Duration(c.SampleRate)
}

// IsSupportedSampleRate reports whether rate is an allowed output rate
func IsSupportedSampleRate(rate int) bool {
	for _, r := range SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// GenerateOutputPath builds a timestamped WAV path inside dir
func GenerateOutputPath(dir string, now time.Time) string {
	name := fmt.Sprintf("recording_%s_%03d.wav", now.Format("20060102_150405"), now.Nanosecond()/int(time.Millisecond))
	return filepath.Join(dir, name)
}
