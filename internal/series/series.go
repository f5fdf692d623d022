// Package series resamples raw samples onto a canonical frequency grid and
// counts the grid slots that hold no value.
package series

import (
	"errors"
	"math"
	"sort"
	"time"

	"missingrecord/internal/models"
)

// ErrInferFrequency is returned when a series has too few distinct timestamps
// to determine its sampling interval.
var ErrInferFrequency = errors.New("cannot infer sampling frequency")

// Sort orders samples by time, keeping the original order of equal timestamps.
func Sort(samples []models.Sample) []models.Sample {
	out := make([]models.Sample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// InferFrequency returns the most common positive spacing between consecutive
// samples. Ties resolve to the smaller spacing.
func InferFrequency(samples []models.Sample) (time.Duration, error) {
	sorted := Sort(samples)
	counts := make(map[time.Duration]int)
	for i := 1; i < len(sorted); i++ {
		diff := sorted[i].Time.Sub(sorted[i-1].Time)
		if diff > 0 {
			counts[diff]++
		}
	}
	if len(counts) == 0 {
		return 0, ErrInferFrequency
	}

	var (
		best      time.Duration
		bestCount int
	)
	for diff, n := range counts {
		if n > bestCount || (n == bestCount && diff < best) {
			best, bestCount = diff, n
		}
	}
	return best, nil
}

// Grid describes the gap-free timestamp grid of a window at one frequency.
type Grid struct {
	Start time.Time
	End   time.Time
	Freq  time.Duration
}

// Floor returns the start of the slot holding t. Slots are counted from
// Start, not from the zero time, so windows opening off a clock boundary
// keep their own slot edges.
func (g Grid) Floor(t time.Time) time.Time {
	if g.Freq <= 0 {
		return t
	}
	offset := t.Sub(g.Start)
	slot := offset / g.Freq
	if offset < 0 && offset%g.Freq != 0 {
		slot--
	}
	return g.Start.Add(slot * g.Freq)
}

// Dedupe floors sample times to their grid slot and keeps the first sample
// of every slot. Samples outside [Start, End) are dropped.
func (g Grid) Dedupe(samples []models.Sample) []models.Sample {
	sorted := Sort(samples)
	if g.Freq <= 0 {
		return sorted
	}
	out := make([]models.Sample, 0, len(sorted))
	var last time.Time
	for _, s := range sorted {
		if s.Time.Before(g.Start) || !s.Time.Before(g.End) {
			continue
		}
		floored := g.Floor(s.Time)
		if len(out) > 0 && floored.Equal(last) {
			continue
		}
		last = floored
		out = append(out, models.Sample{Time: floored, Value: s.Value})
	}
	return out
}

// Slots returns the number of grid points in [Start, End).
func (g Grid) Slots() int {
	if g.Freq <= 0 || !g.End.After(g.Start) {
		return 0
	}
	span := g.End.Sub(g.Start)
	n := int(span / g.Freq)
	if span%g.Freq != 0 {
		n++
	}
	return n
}

// Resample marks which grid slots hold at least one finite sample. Slot i
// covers [Start+i*Freq, Start+(i+1)*Freq).
func (g Grid) Resample(samples []models.Sample) []bool {
	slots := g.Slots()
	present := make([]bool, slots)
	if slots == 0 {
		return present
	}
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		if s.Time.Before(g.Start) || !s.Time.Before(g.End) {
			continue
		}
		idx := int(s.Time.Sub(g.Start) / g.Freq)
		if idx >= 0 && idx < slots {
			present[idx] = true
		}
	}
	return present
}

// CountMissing returns the number of grid slots without a value.
func (g Grid) CountMissing(samples []models.Sample) int {
	missing := 0
	for _, ok := range g.Resample(samples) {
		if !ok {
			missing++
		}
	}
	return missing
}

// MissingDuration converts the missing slot count into a duration, capped at
// the grid span.
func (g Grid) MissingDuration(samples []models.Sample) time.Duration {
	d := time.Duration(g.CountMissing(samples)) * g.Freq
	if span := g.End.Sub(g.Start); d > span {
		d = span
	}
	return d
}
