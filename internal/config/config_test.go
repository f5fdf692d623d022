package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
base_url: http://hilltop.example/
hts: boo.hts
start: "2024-03-01 00:00:00"
end: "2024-03-08 00:00:00"
sites_file: sites.csv
regions:
  - name: Northern
    catalog_regions: [NORTHERN, FAR NORTH]
Annex_1_buckets: [Level, Flow]
Annex_3_sites: [Alpha]
frequency:
  cumulative: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "last", cfg.RegionTieBreak)
	assert.Equal(t, 15*time.Minute, cfg.Frequency.Default)
	assert.Equal(t, time.Hour, cfg.Frequency.Cumulative)
	assert.Equal(t, []string{"Rainfall"}, cfg.Frequency.CumulativeBuckets)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "output_csv", cfg.OutputDirectory)
	assert.Equal(t, "MISSING_RECORD_DSN", cfg.Database.DSNEnv)
	require.Len(t, cfg.Regions, 1)
	assert.Equal(t, []string{"NORTHERN", "FAR NORTH"}, cfg.Regions[0].CatalogRegions)
	assert.Equal(t, []string{"Level", "Flow"}, cfg.Annex1Buckets)
	assert.Equal(t, []string{"Alpha"}, cfg.Annex3Sites)

	w, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, w.Duration())
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing base url": "hts: a.hts\nsites_file: s.csv\n",
		"missing hts":      "base_url: http://x\nsites_file: s.csv\n",
		"missing sites":    "base_url: http://x\nhts: a.hts\n",
		"bad tie break":    "base_url: http://x\nhts: a.hts\nsites_file: s.csv\nregion_tie_break: middle\n",
		"bad timezone":     "base_url: http://x\nhts: a.hts\nsites_file: s.csv\ntimezone: Mars/Olympus\n",
		"region no list":   "base_url: http://x\nhts: a.hts\nsites_file: s.csv\nregions:\n  - name: Northern\n",
		"region traversal": "base_url: http://x\nhts: a.hts\nsites_file: s.csv\nregions:\n  - name: ../etc\n    catalog_regions: [A]\n",
		"region separator": "base_url: http://x\nhts: a.hts\nsites_file: s.csv\nregions:\n  - name: North/South\n    catalog_regions: [A]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadDatabaseReplacesSitesFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "base_url: http://x\nhts: a.hts\ndatabase:\n  enabled: true\n  dsn_env: TEST_MR_DSN\n"))
	require.NoError(t, err)
	t.Setenv("TEST_MR_DSN", "postgres://u@h/db")
	assert.Equal(t, "postgres://u@h/db", cfg.Database.DSN())
}

func TestWindowRejectsInverted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Start = "2024-03-08"
	cfg.End = "2024-03-01"
	_, err := cfg.Window()
	assert.Error(t, err)

	cfg.End = ""
	_, err = cfg.Window()
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("NZST", 12*3600)
	for _, v := range []string{"2024-03-01 06:30:00", "2024-03-01T06:30:00", "2024-03-01 06:30"} {
		got, err := ParseTime(v, loc)
		require.NoError(t, err, v)
		assert.True(t, got.Equal(time.Date(2024, 3, 1, 6, 30, 0, 0, loc)), v)
	}

	got, err := ParseTime("2024-03-01T00:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	_, err = ParseTime("01/03/2024", loc)
	assert.Error(t, err)
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 45, 0, 0, time.UTC)

	weekly, err := PeriodWindow("weekly", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), weekly.Start)
	assert.Equal(t, time.Date(2024, 3, 14, 23, 59, 59, 0, time.UTC), weekly.End)

	monthly, err := PeriodWindow("Monthly", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), monthly.Start)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), monthly.End)

	_, err = PeriodWindow("daily", now)
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MR_TEST_ENV_VALUE=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("MR_TEST_ENV_VALUE") })

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("MR_TEST_ENV_VALUE"))
}
