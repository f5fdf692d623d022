package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missingrecord/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func regular(start time.Time, step time.Duration, n int) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		out[i] = models.Sample{Time: start.Add(time.Duration(i) * step), Value: float64(i)}
	}
	return out
}

func TestInferFrequencyMode(t *testing.T) {
	samples := regular(t0, 15*time.Minute, 8)
	// one irregular reading does not change the mode
	samples = append(samples, models.Sample{Time: t0.Add(2*time.Hour + 5*time.Minute)})

	freq, err := InferFrequency(samples)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, freq)
}

func TestInferFrequencyTieAndFailure(t *testing.T) {
	samples := []models.Sample{
		{Time: t0},
		{Time: t0.Add(10 * time.Minute)},
		{Time: t0.Add(15 * time.Minute)},
	}
	freq, err := InferFrequency(samples)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, freq)

	_, err = InferFrequency([]models.Sample{{Time: t0}, {Time: t0}})
	assert.ErrorIs(t, err, ErrInferFrequency)
}

func TestDedupeKeepsFirst(t *testing.T) {
	samples := []models.Sample{
		{Time: t0.Add(30 * time.Minute), Value: 1},
		{Time: t0.Add(90 * time.Minute), Value: 2},
		{Time: t0.Add(3 * time.Hour), Value: 3},
	}
	g := Grid{Start: t0, End: t0.Add(4 * time.Hour), Freq: 2 * time.Hour}
	out := g.Dedupe(samples)
	require.Len(t, out, 2)
	assert.Equal(t, models.Sample{Time: t0, Value: 1}, out[0])
	assert.Equal(t, models.Sample{Time: t0.Add(2 * time.Hour), Value: 3}, out[1])
}

func TestDedupeFollowsOffsetGrid(t *testing.T) {
	start := t0.Add(time.Hour)
	g := Grid{Start: start, End: start.Add(4 * time.Hour), Freq: 2 * time.Hour}
	samples := []models.Sample{
		{Time: start.Add(90 * time.Minute), Value: 1},
		{Time: start.Add(150 * time.Minute), Value: 2},
		{Time: start.Add(-10 * time.Minute), Value: 9},
	}

	out := g.Dedupe(samples)
	require.Len(t, out, 2)
	assert.Equal(t, start, out[0].Time)
	assert.Equal(t, start.Add(2*time.Hour), out[1].Time)
	assert.Zero(t, g.CountMissing(out))
}

func TestDedupeAucklandMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	g := Grid{Start: start, End: start.Add(4 * time.Hour), Freq: 2 * time.Hour}

	out := g.Dedupe([]models.Sample{
		{Time: start.Add(30 * time.Minute), Value: 0.5},
		{Time: start.Add(150 * time.Minute), Value: 0.5},
	})
	require.Len(t, out, 2)
	assert.Zero(t, g.MissingDuration(out))
}

func TestGridFloor(t *testing.T) {
	start := t0.Add(time.Hour)
	g := Grid{Start: start, End: start.Add(6 * time.Hour), Freq: 2 * time.Hour}
	assert.Equal(t, start, g.Floor(start.Add(119*time.Minute)))
	assert.Equal(t, start.Add(2*time.Hour), g.Floor(start.Add(2*time.Hour)))
	assert.Equal(t, start.Add(-2*time.Hour), g.Floor(start.Add(-time.Minute)))
}

func TestGridCountsMissing(t *testing.T) {
	g := Grid{Start: t0, End: t0.Add(10 * time.Hour), Freq: time.Hour}
	assert.Equal(t, 10, g.Slots())

	samples := regular(t0, time.Hour, 10)
	assert.Zero(t, g.CountMissing(samples))

	// drop hours 3 and 4, blank hour 6, and add a reading past the end
	gappy := append([]models.Sample{}, samples[:3]...)
	gappy = append(gappy, samples[5:]...)
	gappy[4].Value = math.NaN()
	gappy = append(gappy, models.Sample{Time: t0.Add(10 * time.Hour), Value: 1})
	assert.Equal(t, 3, g.CountMissing(gappy))
	assert.Equal(t, 3*time.Hour, g.MissingDuration(gappy))
}

func TestGridEmptySeries(t *testing.T) {
	g := Grid{Start: t0, End: t0.Add(90 * time.Minute), Freq: time.Hour}
	assert.Equal(t, 2, g.Slots())
	// two empty slots would be 2h but the span is only 90m
	assert.Equal(t, 90*time.Minute, g.MissingDuration(nil))

	assert.Zero(t, Grid{Start: t0, End: t0, Freq: time.Hour}.Slots())
}
