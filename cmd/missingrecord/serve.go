package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"missingrecord/internal/metrics"
	"missingrecord/internal/server"
	"missingrecord/internal/storage"
)

var (
	serveAddr    string
	serveRefresh time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history, summaries and metrics over HTTP",
	Long: `Serve a read-only API over the runs recorded by generate.

Endpoints:
  /api/runs?limit=N   recent runs, oldest first
  /api/runs/latest    most recent run with tables
  /api/summary        category summary of the latest run
  /api/live           websocket pushing the latest summary
  /metrics            Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "address for the web server")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", time.Minute, "how often the run history is reloaded")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.NewRunStorage(filepath.Join(cfg.DataDirectory, "runs.json"), historyLimit)
	if err != nil {
		return fmt.Errorf("initialise run history: %w", err)
	}

	srv := server.New(serveAddr, store, metrics.NewCollectors(), serveRefresh)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", serveAddr).Dur("refresh", serveRefresh).Msg("missingrecord listening")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
