package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/speechcapture/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "speechcapture",
	Short: "Microphone capture sessions with chunk streaming and WAV output",
	Long: `SpeechCapture records microphone audio in sessions that can be paused,
resumed, stopped or cancelled. Captured audio is normalized to 16-bit PCM at
the requested rate, streamed as sequenced chunks and written to a WAV file.

Capture runs on miniaudio, PortAudio, PipeWire or a built-in synth source.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel, os.Stderr)

		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		// The default config file is optional
		path := cfgFile
		if path == "" {
			if _, err := os.Stat(config.DefaultPath()); err == nil {
				path = config.DefaultPath()
			}
		}

		var err error
		cfg, err = config.Load(path, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfgFile = path

		if logFile != "" {
			cfg.Log.File = logFile
		}
		if cfg.Log.File != "" {
			setupLogging(verboseLevel, io.MultiWriter(os.Stderr, newLogFile(cfg.Log)))
		}

		slog.Debug("Configuration loaded", "file", path, "profile", cfg.Profile, "backend", cfg.Capture.Backend)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/speechcapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotated file (overrides log.file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=backend tracing")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, w io.Writer) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Backend tracing (level 2)
	if level >= 2 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}

// newLogFile returns a size-rotated log file writer
func newLogFile(c config.LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}
