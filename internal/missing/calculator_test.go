package missing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missingrecord/internal/hilltop"
	"missingrecord/internal/models"
)

var (
	t0     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	window = models.Window{Start: t0, End: t0.Add(10 * time.Hour)}
)

type call struct {
	site, measurement string
	start, end        time.Time
}

type fakeFetcher struct {
	series map[string][]models.Sample
	errs   map[string]error
	calls  []call
}

func (f *fakeFetcher) FetchSeries(_ context.Context, site, measurement string, start, end time.Time) ([]models.Sample, error) {
	f.calls = append(f.calls, call{site, measurement, start, end})
	key := site + "/" + measurement
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	var out []models.Sample
	for _, s := range f.series[key] {
		if !s.Time.Before(start) && !s.Time.After(end) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, hilltop.ErrNoData
	}
	return out, nil
}

type countingObserver map[string]int

func (c countingObserver) ObservePair(outcome string, _ time.Duration) { c[outcome]++ }

func hourly(from time.Time, hours ...int) []models.Sample {
	out := make([]models.Sample, 0, len(hours))
	for _, h := range hours {
		out = append(out, models.Sample{Time: from.Add(time.Duration(h) * time.Hour), Value: 1})
	}
	return out
}

func hourlyPolicy() Policy {
	return Policy{Default: time.Hour, Cumulative: 2 * time.Hour, CumulativeBuckets: []string{"Rainfall"}}
}

func TestEvaluateCountsMissing(t *testing.T) {
	f := &fakeFetcher{series: map[string][]models.Sample{
		"A/Stage": hourly(t0, 0, 1, 2, 5, 6, 7, 8, 9),
	}}
	obs := countingObserver{}
	c := New(f, hourlyPolicy(), obs)

	res := c.Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Stage", Bucket: "Level"}, window)
	require.True(t, res.Available)
	assert.Equal(t, 2*time.Hour, res.Missing)
	assert.Equal(t, 10*time.Hour, res.Evaluated)
	assert.Equal(t, 1, obs[OutcomeEvaluated])
}

func TestEvaluateCloseOverrideNarrowsWindow(t *testing.T) {
	closeAt := t0.Add(5 * time.Hour)
	site := models.Site{Name: "B", Overrides: map[string]models.Override{"Level": {Close: &closeAt}}}
	// hours 6..9 are absent but lie after the close date
	f := &fakeFetcher{series: map[string][]models.Sample{"B/Level": hourly(t0, 0, 1, 3, 4)}}
	c := New(f, hourlyPolicy(), nil)

	res := c.Evaluate(context.Background(), site, models.MeasurementDef{Raw: "Level", Bucket: "Level"}, window)
	require.True(t, res.Available)
	assert.Equal(t, 5*time.Hour, res.Evaluated)
	assert.Equal(t, time.Hour, res.Missing)
	require.Len(t, f.calls, 1)
	assert.Equal(t, closeAt, f.calls[0].end)
}

func TestEvaluateOpenOverride(t *testing.T) {
	openAt := t0.Add(4 * time.Hour)
	site := models.Site{Name: "B", Overrides: map[string]models.Override{"Level": {Open: &openAt}}}
	f := &fakeFetcher{series: map[string][]models.Sample{"B/Level": hourly(t0, 4, 5, 6, 7, 8, 9)}}
	c := New(f, hourlyPolicy(), nil)

	res := c.Evaluate(context.Background(), site, models.MeasurementDef{Raw: "Level", Bucket: "Level"}, window)
	require.True(t, res.Available)
	assert.Equal(t, 6*time.Hour, res.Evaluated)
	assert.Zero(t, res.Missing)
}

func TestEvaluateEmptyEffectiveWindow(t *testing.T) {
	openAt := t0.Add(6 * time.Hour)
	closeAt := t0.Add(3 * time.Hour)
	site := models.Site{Name: "B", Overrides: map[string]models.Override{"Level": {Open: &openAt, Close: &closeAt}}}
	f := &fakeFetcher{}
	obs := countingObserver{}
	c := New(f, hourlyPolicy(), obs)

	res := c.Evaluate(context.Background(), site, models.MeasurementDef{Raw: "Level", Bucket: "Level"}, window)
	assert.False(t, res.Available)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, f.calls)
	assert.Equal(t, 1, obs[OutcomeEmpty])
}

func TestEvaluateUnavailable(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"C/Stage": errors.New("malformed response")}}
	obs := countingObserver{}
	c := New(f, hourlyPolicy(), obs)

	noData := c.Evaluate(context.Background(), models.Site{Name: "C"}, models.MeasurementDef{Raw: "Flow", Bucket: "Flow"}, window)
	assert.False(t, noData.Available)
	assert.Equal(t, "no data", noData.Reason)

	failed := c.Evaluate(context.Background(), models.Site{Name: "C"}, models.MeasurementDef{Raw: "Stage", Bucket: "Level"}, window)
	assert.False(t, failed.Available)
	assert.Contains(t, failed.Reason, "malformed")
	assert.Zero(t, failed.Evaluated)

	assert.Equal(t, 1, obs[OutcomeNoData])
	assert.Equal(t, 1, obs[OutcomeError])
}

func TestEvaluateCumulativeBucket(t *testing.T) {
	// several tips inside the first two-hour slot, nothing between 04:00 and 08:00
	samples := []models.Sample{
		{Time: t0.Add(10 * time.Minute), Value: 0.5},
		{Time: t0.Add(70 * time.Minute), Value: 0.5},
		{Time: t0.Add(2*time.Hour + 5*time.Minute), Value: 0.5},
		{Time: t0.Add(8*time.Hour + 30*time.Minute), Value: 0},
	}
	f := &fakeFetcher{series: map[string][]models.Sample{"A/Rainfall": samples}}
	c := New(f, hourlyPolicy(), nil)

	res := c.Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Rainfall", Bucket: "Rainfall"}, window)
	require.True(t, res.Available)
	assert.Equal(t, 4*time.Hour, res.Missing)
}

func TestEvaluateCumulativeBucketOffGrid(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	local := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	offset := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	cases := map[string]struct {
		start time.Time
		tips  []time.Duration
	}{
		"auckland midnight": {local, []time.Duration{30 * time.Minute, 150 * time.Minute}},
		"utc one hour in":   {offset, []time.Duration{90 * time.Minute, 150 * time.Minute}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			samples := make([]models.Sample, 0, len(tc.tips))
			for _, d := range tc.tips {
				samples = append(samples, models.Sample{Time: tc.start.Add(d), Value: 0.2})
			}
			f := &fakeFetcher{series: map[string][]models.Sample{"A/Rainfall": samples}}
			c := New(f, hourlyPolicy(), nil)

			w := models.Window{Start: tc.start, End: tc.start.Add(4 * time.Hour)}
			res := c.Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Rainfall", Bucket: "Rainfall"}, w)
			require.True(t, res.Available)
			assert.Zero(t, res.Missing)
			assert.Equal(t, 4*time.Hour, res.Evaluated)
		})
	}
}

func TestEvaluateInferredFrequency(t *testing.T) {
	var samples []models.Sample
	for m := 0; m < 600; m += 15 {
		if m >= 60 && m < 120 {
			continue
		}
		samples = append(samples, models.Sample{Time: t0.Add(time.Duration(m) * time.Minute), Value: 1})
	}
	f := &fakeFetcher{series: map[string][]models.Sample{"A/Stage": samples}}
	policy := hourlyPolicy()
	policy.Infer = true
	c := New(f, policy, nil)

	res := c.Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Stage", Bucket: "Level"}, window)
	require.True(t, res.Available)
	assert.Equal(t, time.Hour, res.Missing)

	single := &fakeFetcher{series: map[string][]models.Sample{"A/Stage": hourly(t0, 3)}}
	res = New(single, policy, nil).Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Stage", Bucket: "Level"}, window)
	assert.False(t, res.Available)
}

func TestMissingNeverExceedsEvaluated(t *testing.T) {
	// 90 minute window on an hourly grid with no data at all
	short := models.Window{Start: t0, End: t0.Add(90 * time.Minute)}
	f := &fakeFetcher{series: map[string][]models.Sample{"A/Stage": {{Time: t0.Add(-time.Hour), Value: 1}, {Time: t0.Add(90 * time.Minute), Value: 1}}}}
	c := New(f, hourlyPolicy(), nil)

	res := c.Evaluate(context.Background(), models.Site{Name: "A"}, models.MeasurementDef{Raw: "Stage", Bucket: "Level"}, short)
	require.True(t, res.Available)
	assert.LessOrEqual(t, res.Missing, res.Evaluated)
	assert.Equal(t, 90*time.Minute, res.Missing)
}
