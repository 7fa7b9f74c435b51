package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/speechcapture/internal/capture"
	"github.com/audiolibrelab/speechcapture/internal/config"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available capture devices",
	Long: `List the capture devices of the configured backend, or of the backend given
with --backend. For PipeWire these are the output ports accepted as capture.device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		captureCfg := cfg.Capture
		if b, _ := cmd.Flags().GetString("backend"); b != "" {
			captureCfg.Backend = b
		}
		return listAvailableSources(captureCfg)
	},
}

// listAvailableSources prints the devices reported by one capture backend
func listAvailableSources(c config.CaptureConfig) error {
	backend, devices, err := capture.ListDevices(c)
	if err != nil {
		return fmt.Errorf("failed to list %s devices: %w", c.Backend, err)
	}

	fmt.Printf("Audio Sources (%s, %s)\n", backend, runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("%d found:\n", len(devices))
	for i, d := range devices {
		marker := ""
		if d.Default {
			marker = " [default]"
		}
		fmt.Printf("  %d. %s%s\n", i+1, d.Name, marker)
		if d.ID != "" {
			fmt.Printf("     id: %s\n", d.ID)
		}
		if d.Detail != "" {
			fmt.Printf("     %s\n", d.Detail)
		}
	}

	switch backend {
	case capture.BackendTypePipeWire:
		fmt.Printf("\nUsage:\n")
		fmt.Printf("  • Format: \"Device: Audio (hw:X,Y):Z\" or \"Application:port\"\n")
		fmt.Printf("  • Configure in capture.device, e.g. \"Scarlett 2i2 USB: Audio (hw:1,0):capture_FL\"\n\n")
	case capture.BackendTypeMiniaudio, capture.BackendTypePortAudio:
		fmt.Printf("\nUsage:\n")
		fmt.Printf("  • Configure the device name in capture.device; leave empty for the default device\n\n")
	}
	return nil
}

func init() {
	sourcesCmd.Flags().StringP("backend", "b", "", "backend to query: miniaudio, portaudio, pipewire or synth")
}
