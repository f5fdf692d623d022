// Package missing evaluates how much of a site measurement's series is
// absent over a reporting window.
package missing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"missingrecord/internal/hilltop"
	"missingrecord/internal/models"
	"missingrecord/internal/series"
)

// Outcome labels reported to an Observer.
const (
	OutcomeEvaluated = "evaluated"
	OutcomeNoData    = "no_data"
	OutcomeEmpty     = "empty_window"
	OutcomeError     = "error"
)

// Fetcher returns the raw series of a site measurement.
type Fetcher interface {
	FetchSeries(ctx context.Context, site, measurement string, start, end time.Time) ([]models.Sample, error)
}

// Observer receives one call per evaluated pair.
type Observer interface {
	ObservePair(outcome string, elapsed time.Duration)
}

// Policy fixes the canonical sampling frequency per bucket.
type Policy struct {
	Default           time.Duration
	Cumulative        time.Duration
	CumulativeBuckets []string
	Infer             bool
}

// Calculator evaluates (site, measurement, window) triples.
type Calculator struct {
	fetcher    Fetcher
	policy     Policy
	cumulative map[string]struct{}
	observer   Observer
}

// New creates a calculator. observer may be nil.
func New(fetcher Fetcher, policy Policy, observer Observer) *Calculator {
	cumulative := make(map[string]struct{}, len(policy.CumulativeBuckets))
	for _, b := range policy.CumulativeBuckets {
		cumulative[b] = struct{}{}
	}
	return &Calculator{
		fetcher:    fetcher,
		policy:     policy,
		cumulative: cumulative,
		observer:   observer,
	}
}

// Evaluate returns the missing and evaluated durations of one pair. Every
// failure is reported as an unavailable result; it never aborts the caller.
func (c *Calculator) Evaluate(ctx context.Context, site models.Site, def models.MeasurementDef, window models.Window) models.IntervalResult {
	started := time.Now()
	result, outcome := c.evaluate(ctx, site, def, window)
	if c.observer != nil {
		c.observer.ObservePair(outcome, time.Since(started))
	}
	return result
}

func (c *Calculator) evaluate(ctx context.Context, site models.Site, def models.MeasurementDef, window models.Window) (models.IntervalResult, string) {
	effective := window.Narrow(site.Override(def.Raw))
	if !effective.Valid() {
		return models.Unavailable("override leaves an empty window"), OutcomeEmpty
	}

	samples, err := c.fetcher.FetchSeries(ctx, site.Name, def.Raw, effective.Start, effective.End)
	switch {
	case errors.Is(err, hilltop.ErrNoData):
		return models.Unavailable("no data"), OutcomeNoData
	case err != nil:
		log.Warn().Err(err).Str("site", site.Name).Str("measurement", def.Raw).Msg("fetch failed")
		return models.Unavailable(err.Error()), OutcomeError
	case len(samples) == 0:
		return models.Unavailable("no data"), OutcomeNoData
	}

	freq, samples, err := c.canonical(def, samples, effective)
	if err != nil {
		log.Warn().Err(err).Str("site", site.Name).Str("measurement", def.Raw).Msg("cannot resample series")
		return models.Unavailable(err.Error()), OutcomeError
	}

	grid := series.Grid{Start: effective.Start, End: effective.End, Freq: freq}
	missing := grid.MissingDuration(samples)
	log.Debug().
		Str("site", site.Name).
		Str("measurement", def.Raw).
		Dur("frequency", freq).
		Dur("missing", missing).
		Dur("evaluated", effective.Duration()).
		Msg("pair evaluated")
	return models.Interval(missing, effective.Duration()), OutcomeEvaluated
}

// canonical picks the grid frequency for a measurement and prepares samples.
// Cumulative series are floored onto the evaluation grid of effective.
func (c *Calculator) canonical(def models.MeasurementDef, samples []models.Sample, effective models.Window) (time.Duration, []models.Sample, error) {
	if _, ok := c.cumulative[def.Bucket]; ok {
		grid := series.Grid{Start: effective.Start, End: effective.End, Freq: c.policy.Cumulative}
		return c.policy.Cumulative, grid.Dedupe(samples), nil
	}
	if c.policy.Infer {
		freq, err := series.InferFrequency(samples)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", def.Raw, err)
		}
		return freq, samples, nil
	}
	if c.policy.Default <= 0 {
		return 0, nil, fmt.Errorf("%s: no sampling frequency configured", def.Raw)
	}
	return c.policy.Default, samples, nil
}
