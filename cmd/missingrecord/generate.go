package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"missingrecord/internal/catalog"
	"missingrecord/internal/config"
	"missingrecord/internal/hilltop"
	"missingrecord/internal/metrics"
	"missingrecord/internal/missing"
	"missingrecord/internal/models"
	"missingrecord/internal/report"
	"missingrecord/internal/storage"
	"missingrecord/internal/sweep"
)

var (
	genPeriod      string
	genConcurrency int
	genOutput      string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compute missing record tables for a reporting window",
	Long: `Resolve the site catalog, fetch every site measurement from Hilltop, and
write the full, regional and annex tables plus summary.json.

Examples:
  missingrecord generate --config config_files/script_config.yaml
  missingrecord generate --period weekly --concurrency 8
  missingrecord generate --period monthly --output ./monthly`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genPeriod, "period", "", "weekly or monthly; overrides the configured start and end")
	generateCmd.Flags().IntVar(&genConcurrency, "concurrency", 0, "sites evaluated in parallel (default from config)")
	generateCmd.Flags().StringVar(&genOutput, "output", "", "output directory (default from config)")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if genConcurrency > 0 {
		cfg.Concurrency = genConcurrency
	}
	if genOutput != "" {
		cfg.OutputDirectory = genOutput
	}

	window, err := resolveWindow(cfg, time.Now().In(cfg.Location()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Logger()
	logger.Info().
		Time("start", window.Start).
		Time("end", window.End).
		Int("concurrency", cfg.Concurrency).
		Msg("starting missing record run")

	var db *storage.SQLStore
	if cfg.Database.Enabled {
		db, err = storage.OpenSQL(ctx, storage.SQLConfig{
			DSN:            cfg.Database.DSN(),
			QueryTimeout:   cfg.Database.QueryTimeout,
			SitesQuery:     cfg.Database.SitesQuery,
			OverridesQuery: cfg.Database.OverridesQuery,
		})
		if err != nil {
			return err
		}
		defer db.Close()
	}

	in, err := loadCatalogInput(ctx, cfg, db, window)
	if err != nil {
		return err
	}
	cat, err := catalog.Resolve(in, window, catalog.TieBreak(cfg.RegionTieBreak))
	if err != nil {
		return fmt.Errorf("resolve catalog: %w", err)
	}
	logger.Info().
		Int("sites", len(cat.Sites)).
		Int("measurements", len(cat.Measurements)).
		Int("buckets", len(cat.Buckets)).
		Msg("catalog resolved")

	client, err := hilltop.NewClient(hilltop.Config{
		BaseURL:           cfg.BaseURL,
		HTS:               cfg.HTS,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Location:          cfg.Location(),
	})
	if err != nil {
		return err
	}

	collectors := metrics.NewCollectors()
	calc := missing.New(client, missing.Policy{
		Default:           cfg.Frequency.Default,
		Cumulative:        cfg.Frequency.Cumulative,
		CumulativeBuckets: cfg.Frequency.CumulativeBuckets,
		Infer:             cfg.Frequency.Infer,
	}, collectors)

	started := time.Now()
	results, err := sweep.New(calc, cfg.Concurrency, cfg.RequestTimeout).Run(ctx, cat)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	collectors.ObserveBuckets(results)

	rep := metrics.Rollup(cat, results, metrics.Annex{
		Annex1Buckets: cfg.Annex1Buckets,
		Annex2Buckets: cfg.Annex2Buckets,
		Annex3Sites:   cfg.Annex3Sites,
	})
	finished := time.Now().UTC()
	collectors.ObserveSummaries(rep.Summaries, finished)

	run := models.Run{
		ID:          runID,
		Window:      window,
		GeneratedAt: finished,
		Summaries:   rep.Summaries,
		Tables:      rep.Tables(),
	}

	paths, err := report.WriteAll(cfg.OutputDirectory, run, rep)
	if err != nil {
		return err
	}
	for _, s := range rep.Summaries {
		ev := logger.Info().Str("category", s.Category).Dur("missing", s.Numerator).Dur("evaluated", s.Denominator)
		if s.Percentage != nil {
			ev = ev.Float64("percent", *s.Percentage)
		}
		ev.Msg("category summary")
	}

	if err := persistRun(ctx, cfg, db, collectors, run); err != nil {
		return err
	}

	logger.Info().
		Int("files", len(paths)).
		Str("output", cfg.OutputDirectory).
		Dur("elapsed", time.Since(started)).
		Msg("missing record run complete")
	return nil
}

func resolveWindow(cfg config.Config, now time.Time) (models.Window, error) {
	if genPeriod != "" {
		return config.PeriodWindow(genPeriod, now)
	}
	return cfg.Window()
}

func loadCatalogInput(ctx context.Context, cfg config.Config, db *storage.SQLStore, window models.Window) (catalog.Input, error) {
	measurements, err := catalog.LoadMeasurements(cfg.MeasurementsFile)
	if err != nil {
		return catalog.Input{}, err
	}
	in := catalog.Input{Measurements: measurements, Regions: cfg.Regions}

	if db != nil {
		if in.Sites, err = db.Sites(ctx); err != nil {
			return catalog.Input{}, err
		}
		if in.Overrides, err = db.Overrides(ctx, window); err != nil {
			return catalog.Input{}, err
		}
	} else {
		if in.Sites, err = catalog.LoadSites(cfg.SitesFile); err != nil {
			return catalog.Input{}, err
		}
	}

	if cfg.OverridesFile != "" {
		rows, err := catalog.LoadOverrides(cfg.OverridesFile, cfg.Location())
		if err != nil {
			return catalog.Input{}, err
		}
		in.Overrides = append(in.Overrides, rows...)
	}
	return in, nil
}

// persistRun records the run in the local history, the database and the
// metrics textfile. Secondary sinks only log their failures once the CSV
// outputs exist.
func persistRun(ctx context.Context, cfg config.Config, db *storage.SQLStore, collectors *metrics.Collectors, run models.Run) error {
	store, err := storage.NewRunStorage(filepath.Join(cfg.DataDirectory, "runs.json"), historyLimit)
	if err != nil {
		return fmt.Errorf("initialise run history: %w", err)
	}
	if err := store.Append(run); err != nil {
		return fmt.Errorf("append run history: %w", err)
	}

	var errs []error
	if db != nil {
		if err := db.SaveSummaries(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.MetricsTextfile != "" {
		if err := collectors.WriteTextfile(cfg.MetricsTextfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("run recorded with sink errors")
	}
	return nil
}
