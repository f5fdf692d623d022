// Package bucket groups per-measurement results into reporting buckets.
package bucket

import (
	"time"

	"github.com/rs/zerolog/log"

	"missingrecord/internal/models"
)

// Aggregate combines the measurement results of one site into one result per
// bucket. Every bucket in buckets is present in the output, in that order.
// When several measurements of a bucket returned data their missing
// durations are summed.
func Aggregate(site string, buckets []string, results []models.MeasurementResult) models.SiteBuckets {
	type acc struct {
		missing   time.Duration
		evaluated time.Duration
		sources   int
		values    []time.Duration
	}
	state := make(map[string]*acc, len(buckets))
	for _, b := range buckets {
		state[b] = &acc{}
	}

	for _, r := range results {
		target := state[r.Measurement.Bucket]
		if target == nil {
			log.Warn().Str("site", site).Str("bucket", r.Measurement.Bucket).Msg("result for undeclared bucket ignored")
			continue
		}
		if !r.Result.Available {
			continue
		}
		target.sources++
		target.missing += r.Result.Missing
		target.evaluated += r.Result.Evaluated
		target.values = append(target.values, r.Result.Missing)
	}

	out := models.SiteBuckets{Site: site, Buckets: make([]models.BucketResult, 0, len(buckets))}
	for _, b := range buckets {
		data := state[b]
		result := models.BucketResult{
			Bucket:    b,
			Evaluated: data.evaluated,
			Sources:   data.sources,
		}
		if data.sources > 0 {
			result.Available = true
			result.Missing = data.missing
		}
		if data.sources > 1 {
			values := make([]string, len(data.values))
			for i, v := range data.values {
				values[i] = v.String()
			}
			log.Warn().
				Str("site", site).
				Str("bucket", b).
				Strs("missing", values).
				Msg("multiple data sources in one bucket, summing")
		}
		out.Buckets = append(out.Buckets, result)
	}
	return out
}
