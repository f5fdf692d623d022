package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"missingrecord/internal/models"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads a timestamp in any of the supported layouts. Timestamps
// without a zone are interpreted in loc.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// PeriodWindow computes the reporting window for a scheduled period relative
// to now. Weekly covers the seven previous days up to yesterday 23:59:59;
// monthly runs from the same day last month to today at midnight.
func PeriodWindow(period string, now time.Time) (models.Window, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch strings.ToLower(period) {
	case "weekly":
		return models.Window{
			Start: today.AddDate(0, 0, -7),
			End:   today.AddDate(0, 0, -1).Add(24*time.Hour - time.Second),
		}, nil
	case "monthly":
		return models.Window{
			Start: today.AddDate(0, -1, 0),
			End:   today,
		}, nil
	default:
		return models.Window{}, fmt.Errorf("unknown period %q (want weekly or monthly)", period)
	}
}

// LoadEnv reads .env style files into the process environment. Missing files
// are ignored so production hosts can rely on real environment variables.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}
