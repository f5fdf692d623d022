package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"missingrecord/internal/models"
)

// Collectors holds the Prometheus instruments of a run.
type Collectors struct {
	Registry *prometheus.Registry

	Pairs            *prometheus.CounterVec
	PairDuration     prometheus.Histogram
	MultiSource      prometheus.Counter
	UnavailableCells prometheus.Counter
	CategoryPercent  *prometheus.GaugeVec
	CategoryMissing  *prometheus.GaugeVec
	LastRun          prometheus.Gauge
}

// NewCollectors registers every instrument on a fresh registry.
func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Pairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "missingrecord_pairs_total",
				Help: "Site measurement pairs evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		PairDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "missingrecord_pair_duration_seconds",
				Help:    "Time spent fetching and resampling one pair",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		MultiSource: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "missingrecord_multi_source_buckets_total",
				Help: "Site buckets fed by more than one measurement with data",
			},
		),
		UnavailableCells: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "missingrecord_unavailable_cells_total",
				Help: "Site buckets with no evaluable measurement",
			},
		),
		CategoryPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "missingrecord_category_missing_percent",
				Help: "Missing record percentage per report category",
			},
			[]string{"category"},
		),
		CategoryMissing: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "missingrecord_category_missing_seconds",
				Help: "Missing record per report category",
			},
			[]string{"category"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "missingrecord_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
	c.Registry.MustRegister(
		c.Pairs,
		c.PairDuration,
		c.MultiSource,
		c.UnavailableCells,
		c.CategoryPercent,
		c.CategoryMissing,
		c.LastRun,
	)
	return c
}

// ObservePair records one evaluated pair.
func (c *Collectors) ObservePair(outcome string, elapsed time.Duration) {
	c.Pairs.WithLabelValues(outcome).Inc()
	c.PairDuration.Observe(elapsed.Seconds())
}

// ObserveBuckets counts multi-source and unavailable site buckets.
func (c *Collectors) ObserveBuckets(results []models.SiteBuckets) {
	for _, site := range results {
		for _, b := range site.Buckets {
			if b.Sources > 1 {
				c.MultiSource.Inc()
			}
			if !b.Available {
				c.UnavailableCells.Inc()
			}
		}
	}
}

// ObserveSummaries publishes the category totals of a run. Categories without
// a percentage are removed rather than reported as zero.
func (c *Collectors) ObserveSummaries(summaries []models.Summary, finished time.Time) {
	for _, s := range summaries {
		c.CategoryMissing.WithLabelValues(s.Category).Set(s.Numerator.Seconds())
		if s.Percentage == nil {
			c.CategoryPercent.DeleteLabelValues(s.Category)
			continue
		}
		c.CategoryPercent.WithLabelValues(s.Category).Set(*s.Percentage)
	}
	c.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (c *Collectors) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Registry)
}
