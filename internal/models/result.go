package models

import "time"

// IntervalResult is the outcome of evaluating one (site, measurement) pair.
// When Available is false the durations are zero and Reason says why.
type IntervalResult struct {
	Available bool          `json:"available"`
	Missing   time.Duration `json:"missing"`
	Evaluated time.Duration `json:"evaluated"`
	Reason    string        `json:"reason,omitempty"`
}

// Unavailable builds a result for a pair that could not be evaluated.
func Unavailable(reason string) IntervalResult {
	return IntervalResult{Reason: reason}
}

// Interval builds an evaluated result. Missing is clamped to [0, evaluated].
func Interval(missing, evaluated time.Duration) IntervalResult {
	if missing < 0 {
		missing = 0
	}
	if missing > evaluated {
		missing = evaluated
	}
	return IntervalResult{Available: true, Missing: missing, Evaluated: evaluated}
}

// MeasurementResult pairs a measurement definition with its evaluation.
type MeasurementResult struct {
	Measurement MeasurementDef `json:"measurement"`
	Result      IntervalResult `json:"result"`
}

// BucketResult aggregates the measurements feeding one bucket at one site.
// Sources counts the contributing measurements that returned data.
type BucketResult struct {
	Bucket    string        `json:"bucket"`
	Available bool          `json:"available"`
	Missing   time.Duration `json:"missing"`
	Evaluated time.Duration `json:"evaluated"`
	Sources   int           `json:"sources"`
}

// SiteBuckets holds every bucket result of one site in catalog bucket order.
type SiteBuckets struct {
	Site    string         `json:"site"`
	Buckets []BucketResult `json:"buckets"`
}

// Bucket looks up a bucket result by name.
func (s SiteBuckets) Bucket(name string) (BucketResult, bool) {
	for _, b := range s.Buckets {
		if b.Bucket == name {
			return b, true
		}
	}
	return BucketResult{}, false
}
