package metrics

import (
	"math"
	"time"

	"missingrecord/internal/catalog"
	"missingrecord/internal/models"
)

// Category names of the report tables.
const (
	CategoryAll    = "all"
	CategoryAnnex1 = "annex1"
	CategoryAnnex2 = "annex2"
	CategoryAnnex3 = "annex3"
)

// Annex configures the three annex categories.
type Annex struct {
	Annex1Buckets []string
	Annex2Buckets []string
	Annex3Sites   []string
}

// Report holds every table of a run plus the annex summaries.
type Report struct {
	Full      models.Table
	Regions   []models.Table
	Annex1    models.Table
	Annex2    models.Table
	Annex3    models.Table
	Summaries []models.Summary
}

// Tables lists all tables in output order.
func (r Report) Tables() []models.Table {
	out := []models.Table{r.Full}
	out = append(out, r.Regions...)
	return append(out, r.Annex1, r.Annex2, r.Annex3)
}

// Rollup builds the regional and annex views of the per-site bucket results.
// results must follow catalog site order.
func Rollup(cat *catalog.Catalog, results []models.SiteBuckets, annex Annex) Report {
	all := cat.SiteNames()
	report := Report{Full: BuildTable(CategoryAll, results, all, cat.Buckets)}

	for _, region := range cat.Regions {
		report.Regions = append(report.Regions, BuildTable(region.Name, results, region.Sites, cat.Buckets))
	}

	annex3 := setOf(annex.Annex3Sites)
	rivers := make([]string, 0, len(all))
	for _, name := range all {
		if _, ok := annex3[name]; !ok {
			rivers = append(rivers, name)
		}
	}
	known := setOf(all)
	annex3Sites := make([]string, 0, len(annex.Annex3Sites))
	for _, name := range annex.Annex3Sites {
		if _, ok := known[name]; ok {
			annex3Sites = append(annex3Sites, name)
		}
	}

	report.Annex1 = BuildTable(CategoryAnnex1, results, rivers, filterBuckets(cat.Buckets, annex.Annex1Buckets))
	report.Annex2 = BuildTable(CategoryAnnex2, results, rivers, filterBuckets(cat.Buckets, annex.Annex2Buckets))
	report.Annex3 = BuildTable(CategoryAnnex3, results, annex3Sites, cat.Buckets)

	report.Summaries = []models.Summary{
		Summarise(report.Annex1),
		Summarise(report.Annex2),
		Summarise(report.Annex3),
	}
	return report
}

// BuildTable selects sites and bucket columns from results and appends the
// TOTAL row. Rows follow the order of sites; unknown sites are skipped.
func BuildTable(name string, results []models.SiteBuckets, sites, columns []string) models.Table {
	bySite := make(map[string]models.SiteBuckets, len(results))
	for _, r := range results {
		bySite[r.Site] = r
	}

	table := models.Table{
		Name:    name,
		Columns: append([]string{}, columns...),
		Rows:    make([]models.Row, 0, len(sites)),
	}
	total := models.Row{Site: models.TotalRow, Cells: make([]models.Cell, len(columns))}
	for _, site := range sites {
		res, ok := bySite[site]
		if !ok {
			continue
		}
		row := models.Row{Site: site, Cells: make([]models.Cell, len(columns))}
		for i, col := range columns {
			b, ok := res.Bucket(col)
			if !ok {
				continue
			}
			cell := models.Cell{Available: b.Available, Missing: b.Missing, Evaluated: b.Evaluated}
			row.Cells[i] = cell
			total.Cells[i].Evaluated += cell.Evaluated
			if cell.Available {
				total.Cells[i].Available = true
				total.Cells[i].Missing += cell.Missing
			}
		}
		table.Rows = append(table.Rows, row)
	}
	table.Total = total
	return table
}

// Summarise totals a table: the numerator sums missing time over evaluated
// cells, the denominator sums evaluated time over every cell.
func Summarise(table models.Table) models.Summary {
	var num, den time.Duration
	for _, row := range table.Rows {
		for _, cell := range row.Cells {
			den += cell.Evaluated
			if cell.Available {
				num += cell.Missing
			}
		}
	}
	return models.Summary{
		Category:    table.Name,
		Numerator:   num,
		Denominator: den,
		Percentage:  Percentage(num, den),
	}
}

// Percentage returns num/den*100 rounded to two decimals, or nil when den is
// not positive.
func Percentage(num, den time.Duration) *float64 {
	if den <= 0 {
		return nil
	}
	v := round2(float64(num) / float64(den) * 100)
	return &v
}

func filterBuckets(buckets, keep []string) []string {
	wanted := setOf(keep)
	out := make([]string, 0, len(keep))
	for _, b := range buckets {
		if _, ok := wanted[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

func setOf(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
