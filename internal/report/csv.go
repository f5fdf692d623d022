// Package report writes run tables and summaries for downstream consumers.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"missingrecord/internal/metrics"
	"missingrecord/internal/models"
)

// Mode selects which value of a cell is written.
type Mode int

const (
	// Missing writes missing hours; unavailable cells are empty.
	Missing Mode = iota
	// Evaluated writes evaluated hours for every cell.
	Evaluated
	// Percent writes missing as a percentage of evaluated time.
	Percent
)

// WriteTable writes one table with a leading Sites column and a closing
// TOTAL row.
func WriteTable(w io.Writer, table models.Table, mode Mode) error {
	wr := csv.NewWriter(w)
	if err := wr.Write(append([]string{"Sites"}, table.Columns...)); err != nil {
		return err
	}
	rows := append(append([]models.Row{}, table.Rows...), table.Total)
	for _, row := range rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, row.Site)
		for _, c := range row.Cells {
			record = append(record, formatCell(c, mode))
		}
		if err := wr.Write(record); err != nil {
			return err
		}
	}
	wr.Flush()
	return wr.Error()
}

func formatCell(c models.Cell, mode Mode) string {
	switch mode {
	case Evaluated:
		return hours(c.Evaluated)
	case Percent:
		if p := c.Percent(); p != nil {
			return strconv.FormatFloat(*p, 'f', 2, 64)
		}
		return ""
	default:
		if !c.Available {
			return ""
		}
		return hours(c.Missing)
	}
}

func hours(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'f', 2, 64)
}

// WriteAll writes every table of a report plus summary.json into dir and
// returns the paths written.
func WriteAll(dir string, run models.Run, rep metrics.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}

	type output struct {
		name  string
		table models.Table
		mode  Mode
	}
	outputs := []output{
		{"output.csv", rep.Full, Missing},
		{"output_percent.csv", rep.Full, Percent},
		{"output_totals.csv", rep.Full, Evaluated},
	}
	for _, region := range rep.Regions {
		name := fmt.Sprintf("output_%s.csv", region.Name)
		if filepath.Base(name) != name || strings.Contains(region.Name, "..") {
			return nil, fmt.Errorf("region %q cannot be used as a file name", region.Name)
		}
		outputs = append(outputs, output{name, region, Missing})
	}
	outputs = append(outputs,
		output{"output_annex1.csv", rep.Annex1, Missing},
		output{"output_annex2.csv", rep.Annex2, Missing},
		output{"output_annex3.csv", rep.Annex3, Missing},
	)

	written := make([]string, 0, len(outputs)+1)
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeFile(path, func(w io.Writer) error { return WriteTable(w, o.table, o.mode) }); err != nil {
			return written, fmt.Errorf("write %s: %w", o.name, err)
		}
		written = append(written, path)
	}

	path := filepath.Join(dir, "summary.json")
	if err := writeFile(path, func(w io.Writer) error { return WriteSummary(w, run) }); err != nil {
		return written, fmt.Errorf("write summary: %w", err)
	}
	return append(written, path), nil
}

type summaryJSON struct {
	RunID       string        `json:"run_id"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	GeneratedAt time.Time     `json:"generated_at"`
	Categories  []summaryItem `json:"categories"`
}

type summaryItem struct {
	Category         string   `json:"category"`
	NumeratorHours   float64  `json:"numerator_hours"`
	DenominatorHours float64  `json:"denominator_hours"`
	Percentage       *float64 `json:"percentage"`
}

// WriteSummary writes the per-category summary of a run as JSON. A category
// without evaluated time has a null percentage.
func WriteSummary(w io.Writer, run models.Run) error {
	out := summaryJSON{
		RunID:       run.ID,
		Start:       run.Window.Start,
		End:         run.Window.End,
		GeneratedAt: run.GeneratedAt,
		Categories:  make([]summaryItem, 0, len(run.Summaries)),
	}
	for _, s := range run.Summaries {
		out.Categories = append(out.Categories, summaryItem{
			Category:         s.Category,
			NumeratorHours:   s.Numerator.Hours(),
			DenominatorHours: s.Denominator.Hours(),
			Percentage:       s.Percentage,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
