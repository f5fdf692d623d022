// Package sweep evaluates every site measurement pair of a catalog.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"missingrecord/internal/bucket"
	"missingrecord/internal/catalog"
	"missingrecord/internal/models"
)

// Evaluator computes the interval result of one pair.
type Evaluator interface {
	Evaluate(ctx context.Context, site models.Site, def models.MeasurementDef, window models.Window) models.IntervalResult
}

// Sweeper runs one full measurement sweep per site.
type Sweeper struct {
	eval        Evaluator
	concurrency int
	timeout     time.Duration
}

// New creates a sweeper. concurrency is the number of sites evaluated at
// once; timeout bounds each pair.
func New(eval Evaluator, concurrency int, timeout time.Duration) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Sweeper{eval: eval, concurrency: concurrency, timeout: timeout}
}

// Run returns the bucket results of every catalog site, in catalog order.
// Only cancellation of ctx stops the sweep early.
func (s *Sweeper) Run(ctx context.Context, cat *catalog.Catalog) ([]models.SiteBuckets, error) {
	results := make([]models.SiteBuckets, len(cat.Sites))
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, site := range cat.Sites {
		i, site := i, site
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			measured, err := s.RunSite(gctx, site, cat)
			if err != nil {
				return err
			}
			results[i] = bucket.Aggregate(site.Name, cat.Buckets, measured)
			log.Info().
				Str("site", site.Name).
				Int("index", i+1).
				Int("sites", len(cat.Sites)).
				Dur("elapsed", time.Since(started)).
				Msg("site swept")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunSite evaluates every measurement of one site in catalog order.
func (s *Sweeper) RunSite(ctx context.Context, site models.Site, cat *catalog.Catalog) ([]models.MeasurementResult, error) {
	out := make([]models.MeasurementResult, 0, len(cat.Measurements))
	for _, def := range cat.Measurements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pairCtx, cancel := context.WithTimeout(ctx, s.timeout)
		res := s.eval.Evaluate(pairCtx, site, def, cat.Window)
		cancel()
		out = append(out, models.MeasurementResult{Measurement: def, Result: res})
	}
	return out, nil
}
