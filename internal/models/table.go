package models

import "time"

// TotalRow labels the synthetic row closing every table.
const TotalRow = "TOTAL"

// Cell is one (site, bucket) entry of a report table. Missing is meaningful
// only when Available is true; Evaluated is always summed.
type Cell struct {
	Available bool          `json:"available"`
	Missing   time.Duration `json:"missing"`
	Evaluated time.Duration `json:"evaluated"`
}

// Percent returns Missing as a percentage of Evaluated, or nil when the cell
// could not be evaluated or covers no time.
func (c Cell) Percent() *float64 {
	if !c.Available || c.Evaluated <= 0 {
		return nil
	}
	v := float64(c.Missing) / float64(c.Evaluated) * 100
	return &v
}

// Row is one site of a table, with cells in column order.
type Row struct {
	Site  string `json:"site"`
	Cells []Cell `json:"cells"`
}

// Table is a named site x bucket view with its TOTAL row.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Total   Row      `json:"total"`
}

// Summary is the numerator/denominator record of one report category.
// Percentage is nil when the denominator is zero.
type Summary struct {
	Category    string        `json:"category"`
	Numerator   time.Duration `json:"numerator"`
	Denominator time.Duration `json:"denominator"`
	Percentage  *float64      `json:"percentage"`
}

// Run is the persisted outcome of one generate invocation.
type Run struct {
	ID          string    `json:"id"`
	Window      Window    `json:"window"`
	GeneratedAt time.Time `json:"generated_at"`
	Summaries   []Summary `json:"summaries"`
	Tables      []Table   `json:"tables"`
}
