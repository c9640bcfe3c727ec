package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the keywordlens server",
	Long: `Start the keywordlens HTTP server.

The server drives one triage run at a time: upload or pass keywords,
start analysis, review or verify, then export.

Examples:
  keywordlens serve                    # Start on default port 8090
  keywordlens serve --port 3000        # Start on custom port
  keywordlens serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		mgr.WatchConfig()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8090", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
