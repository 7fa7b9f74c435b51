package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/speechcapture/internal/audio"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [file.wav]",
	Short: "Show format, duration and level of a recording",
	Long: `Read the WAV header of a recording and scan its samples for the peak level.
A relative name is looked up in output.directory when it does not exist as given.
Recordings from an interrupted session are reported as incomplete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveRecording(args[0])

		info, err := audio.Inspect(path)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", path, err)
		}

		status := "complete"
		if !info.Consistent {
			status = "incomplete (header does not match file size)"
		}

		fmt.Printf("=== RECORDING ===\n")
		fmt.Printf("path: %s\n", info.Path)
		fmt.Printf("status: %s\n", status)
		fmt.Printf("\n[Format]\n")
		fmt.Printf("sample_rate: %d\n", info.SampleRate)
		fmt.Printf("channels: %d\n", info.Channels)
		fmt.Printf("bit_depth: %d\n", info.BitDepth)
		fmt.Printf("\n[Content]\n")
		fmt.Printf("duration: %s\n", info.Duration)
		fmt.Printf("data_bytes: %d\n", info.DataBytes)
		fmt.Printf("file_size: %d\n", info.FileSize)
		fmt.Printf("peak: %d (%.1f dBFS)\n", info.Peak, info.PeakDBFS)
		return nil
	},
}

// resolveRecording maps a bare recording name to the output directory
func resolveRecording(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(cfg.Output.Directory, name)
}
