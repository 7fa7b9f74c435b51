package audio

// AudioChunk is one timestamped, sequence-numbered batch of interleaved PCM samples
type AudioChunk struct {
	Data           []int16 `json:"data" msgpack:"data"`
	TimestampMs    int64   `json:"timestampMs" msgpack:"timestampMs"`
	SequenceNumber uint64  `json:"sequenceNumber" msgpack:"sequenceNumber"`
}

// Frames returns the number of frames in the chunk for the given channel count
func (c AudioChunk) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(c.Data) / channels
}

// RecordingResult describes a successfully finalized recording
type RecordingResult struct {
	Path          string `json:"path"`
	DurationMs    int64  `json:"durationMs"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	SampleRate    int    `json:"sampleRate"`
	Channels      int    `json:"channels"`
}
