package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/speechcapture/internal/server"
	"github.com/audiolibrelab/speechcapture/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the SpeechCapture web server to control capture sessions over HTTP.
State changes and errors are streamed as Server-Sent Events on /events, audio
chunks as msgpack on /api/chunks.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("SpeechCapture web server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "backend", cfg.Capture.Backend, "config", cfgFile)

		// Blocks until interrupted
		if err := server.New(svc, cfg.Server).Run(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "port for the web server (overrides server.port)")
	serveCmd.Flags().String("host", "", "listen address (overrides server.host)")
}
