package audio

// WriterResult describes a finalized output file
type WriterResult struct {
	Path       string
	DurationMs int64
	SizeBytes  int64
	DataBytes  int64
}

// PersistentWriter is the sink a session appends normalized samples to.
// Write is only ever called with whole frames; no call follows Finalize or Cancel.
type PersistentWriter interface {
	Write(samples []int16) error
	Finalize() (WriterResult, error)
	Cancel()
	Path() string
}

// WriterFactory opens the writer for a normalized session config
type WriterFactory func(cfg RecorderConfig) (PersistentWriter, error)

// NewWAVWriterFactory returns the default factory writing WAV files
func NewWAVWriterFactory() WriterFactory {
	return func(cfg RecorderConfig) (PersistentWriter, error) {
		w, err := CreateWAV(cfg.OutputPath, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
