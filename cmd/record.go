package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/audiolibrelab/speechcapture/internal/audio"
	"github.com/audiolibrelab/speechcapture/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a capture session to a WAV file",
	Long: `Record microphone audio to a 16-bit PCM WAV file.

While recording, type a command and press Enter:
  p  pause      r  resume
  s  stop       c  cancel (deletes the file)
Ctrl+C stops the recording and keeps the file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := recordOverrides(cmd)
		if err != nil {
			return err
		}
		duration, _ := cmd.Flags().GetDuration("duration")

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer svc.Close()

		var chunks atomic.Uint64
		faults := make(chan audio.Event, 1)
		unsubscribe := svc.Subscribe(audio.ListenerFunc(func(e audio.Event) {
			switch e.Type {
			case audio.EventAudioData:
				chunks.Add(1)
			case audio.EventStateChange:
				slog.Debug("State changed", "from", e.OldState, "to", e.NewState)
			case audio.EventError:
				select {
				case faults <- e:
				default:
				}
			}
		}))
		defer unsubscribe()

		if err := svc.Start(overrides); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording - type p/r/s/c and Enter, or press Ctrl+C to stop", "backend", cfg.Capture.Backend)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- strings.TrimSpace(strings.ToLower(scanner.Text()))
			}
			close(lines)
		}()

		var deadline <-chan time.Time
		if duration > 0 {
			deadline = time.After(duration)
		}

		for {
			select {
			case <-sigChan:
				slog.Info("Stopping recording...")
				return finishRecording(svc, chunks.Load())
			case <-deadline:
				slog.Info("Duration reached, stopping recording", "duration", duration)
				return finishRecording(svc, chunks.Load())
			case e := <-faults:
				svc.Cancel()
				return fmt.Errorf("recording failed (%s): %s", e.Code, e.Message)
			case line, ok := <-lines:
				if !ok {
					// stdin closed, keep recording until a signal or the deadline
					lines = nil
					continue
				}
				switch line {
				case "p", "pause":
					if err := svc.Pause(); err != nil {
						slog.Warn("Pause failed", "error", err)
						continue
					}
					slog.Info("Paused", "active", time.Duration(svc.GetStatus().ActiveDurationMs)*time.Millisecond)
				case "r", "resume":
					if err := svc.Resume(); err != nil {
						slog.Warn("Resume failed", "error", err)
						continue
					}
					slog.Info("Resumed")
				case "c", "cancel":
					if err := svc.Cancel(); err != nil {
						return fmt.Errorf("failed to cancel recording: %w", err)
					}
					fmt.Println("Recording cancelled")
					return nil
				case "s", "stop", "":
					return finishRecording(svc, chunks.Load())
				default:
					slog.Warn("Unknown command", "command", line)
				}
			}
		}
	},
}

func finishRecording(svc service.Service, chunks uint64) error {
	res, err := svc.Stop()
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	fmt.Printf("Recording saved: %s\n", res.Path)
	fmt.Printf("  duration: %s\n", time.Duration(res.DurationMs)*time.Millisecond)
	fmt.Printf("  size:     %d bytes\n", res.FileSizeBytes)
	fmt.Printf("  format:   %d Hz, %d ch, 16-bit PCM\n", res.SampleRate, res.Channels)
	fmt.Printf("  chunks:   %d\n", chunks)
	return nil
}

// recordOverrides collects recorder settings given on the command line
func recordOverrides(cmd *cobra.Command) (audio.RecorderConfig, error) {
	var rc audio.RecorderConfig
	var err error
	if rc.OutputPath, err = cmd.Flags().GetString("output"); err != nil {
		return rc, err
	}
	if rc.SampleRate, err = cmd.Flags().GetInt("rate"); err != nil {
		return rc, err
	}
	if rc.Channels, err = cmd.Flags().GetInt("channels"); err != nil {
		return rc, err
	}
	if rc.ChunkSize, err = cmd.Flags().GetInt("chunk-size"); err != nil {
		return rc, err
	}
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return rc, err
	}
	rc.AudioSource = audio.AudioSourceHint(source)
	return rc, nil
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output WAV file (default: timestamped file in output.directory)")
	recordCmd.Flags().IntP("rate", "r", 0, "sample rate: 8000, 16000, 44100 or 48000 (overrides config)")
	recordCmd.Flags().IntP("channels", "c", 0, "channel count: 1 or 2 (overrides config)")
	recordCmd.Flags().Int("chunk-size", 0, "frames per emitted chunk (overrides config)")
	recordCmd.Flags().String("source", "", "audio source hint: default, mic, voiceRecognition, voiceCommunication")
	recordCmd.Flags().DurationP("duration", "d", 0, "stop automatically after this duration")
}
