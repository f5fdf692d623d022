package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"missingrecord/internal/config"
	"missingrecord/internal/models"
)

// LoadMeasurements reads the two-column (raw, bucket) measurement file. The
// file has no header; blank lines are skipped.
func LoadMeasurements(path string) ([]models.MeasurementDef, error) {
	records, err := readCSV(path, 2)
	if err != nil {
		return nil, fmt.Errorf("read measurements: %w", err)
	}
	defs := make([]models.MeasurementDef, 0, len(records))
	for _, rec := range records {
		defs = append(defs, models.MeasurementDef{Raw: rec[0], Bucket: rec[1]})
	}
	return defs, nil
}

// LoadSites reads a SiteName,RegionName file with a header row.
func LoadSites(path string) ([]SiteRow, error) {
	records, err := readCSV(path, 2)
	if err != nil {
		return nil, fmt.Errorf("read sites: %w", err)
	}
	rows := make([]SiteRow, 0, len(records))
	for i, rec := range records {
		if i == 0 && isHeader(rec[0], "sitename") {
			continue
		}
		rows = append(rows, SiteRow{SiteName: rec[0], RegionName: rec[1]})
	}
	return rows, nil
}

// LoadOverrides reads a Site,Measurement,Datetime,Kind file with a header
// row. A missing path yields no overrides.
func LoadOverrides(path string, loc *time.Location) ([]OverrideRow, error) {
	if path == "" {
		return nil, nil
	}
	records, err := readCSV(path, 4)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	rows := make([]OverrideRow, 0, len(records))
	for i, rec := range records {
		if i == 0 && isHeader(rec[0], "site") {
			continue
		}
		at, err := config.ParseTime(rec[2], loc)
		if err != nil {
			return nil, fmt.Errorf("override line %d: %w", i+1, err)
		}
		rows = append(rows, OverrideRow{
			Site:        strings.TrimSpace(rec[0]),
			Measurement: strings.TrimSpace(rec[1]),
			Datetime:    at,
			Kind:        strings.TrimSpace(rec[3]),
		})
	}
	return rows, nil
}

func readCSV(path string, fields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out [][]string
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(rec) < fields {
			return nil, fmt.Errorf("%s line %d: want %d fields, got %d", path, line, fields, len(rec))
		}
		out = append(out, rec[:fields])
	}
	return out, nil
}

func isHeader(value, want string) bool {
	return strings.EqualFold(strings.TrimSpace(value), want)
}
