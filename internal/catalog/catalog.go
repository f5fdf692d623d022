package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"missingrecord/internal/models"
)

// ErrDuplicateOverride is returned when a site measurement has more than one
// override of the same kind inside the reporting window.
var ErrDuplicateOverride = errors.New("duplicate override")

// TieBreak picks a region for sites listed under several regions.
type TieBreak string

const (
	// TieBreakLast keeps the last region in lexical order.
	TieBreakLast TieBreak = "last"
	// TieBreakFirst keeps the first region in lexical order.
	TieBreakFirst TieBreak = "first"
)

// SiteRow is one row of the site catalog.
type SiteRow struct {
	SiteName   string `db:"SiteName"`
	RegionName string `db:"RegionName"`
}

// OverrideRow is one manual open or close date.
type OverrideRow struct {
	Site        string    `db:"Site"`
	Measurement string    `db:"Measurement"`
	Datetime    time.Time `db:"Datetime"`
	Kind        string    `db:"Kind"`
}

// Input bundles the raw catalog rows for Resolve.
type Input struct {
	Sites        []SiteRow
	Measurements []models.MeasurementDef
	Overrides    []OverrideRow
	Regions      []models.RegionGroup
}

// Region lists the sites of one report region in catalog order.
type Region struct {
	Name  string
	Sites []string
}

// Catalog is the resolved site and measurement universe of a run.
type Catalog struct {
	Window       models.Window
	Sites        []models.Site
	Measurements []models.MeasurementDef
	Buckets      []string
	Regions      []Region

	index map[string]int
}

// Resolve deduplicates sites, orders buckets and attaches the overrides that
// fall inside window. Duplicate overrides abort resolution.
func Resolve(in Input, window models.Window, tie TieBreak) (*Catalog, error) {
	if !window.Valid() {
		return nil, fmt.Errorf("invalid window %s - %s", window.Start, window.End)
	}
	if tie == "" {
		tie = TieBreakLast
	}
	if tie != TieBreakLast && tie != TieBreakFirst {
		return nil, fmt.Errorf("unknown region tie-break %q", tie)
	}

	cat := &Catalog{
		Window:       window,
		Measurements: make([]models.MeasurementDef, 0, len(in.Measurements)),
		index:        make(map[string]int),
	}

	regions := make(map[string][]string)
	for _, row := range in.Sites {
		name := strings.TrimSpace(row.SiteName)
		if name == "" {
			continue
		}
		if _, ok := cat.index[name]; !ok {
			cat.index[name] = len(cat.Sites)
			cat.Sites = append(cat.Sites, models.Site{Name: name})
		}
		regions[name] = appendUnique(regions[name], strings.TrimSpace(row.RegionName))
	}
	for i := range cat.Sites {
		site := &cat.Sites[i]
		site.Region = pickRegion(regions[site.Name], tie)
		if len(regions[site.Name]) > 1 {
			log.Debug().
				Str("site", site.Name).
				Strs("regions", regions[site.Name]).
				Str("chosen", site.Region).
				Msg("site listed under several regions")
		}
	}

	seenBucket := make(map[string]struct{})
	for _, def := range in.Measurements {
		def.Raw = strings.TrimSpace(def.Raw)
		def.Bucket = strings.TrimSpace(def.Bucket)
		if def.Raw == "" || def.Bucket == "" {
			continue
		}
		cat.Measurements = append(cat.Measurements, def)
		if _, ok := seenBucket[def.Bucket]; !ok {
			seenBucket[def.Bucket] = struct{}{}
			cat.Buckets = append(cat.Buckets, def.Bucket)
		}
	}

	if err := cat.attachOverrides(in.Overrides); err != nil {
		return nil, err
	}

	for _, group := range in.Regions {
		wanted := make(map[string]struct{}, len(group.CatalogRegions))
		for _, r := range group.CatalogRegions {
			wanted[r] = struct{}{}
		}
		region := Region{Name: group.Name}
		for _, site := range cat.Sites {
			if _, ok := wanted[site.Region]; ok {
				region.Sites = append(region.Sites, site.Name)
			}
		}
		cat.Regions = append(cat.Regions, region)
	}
	return cat, nil
}

func (c *Catalog) attachOverrides(rows []OverrideRow) error {
	for _, row := range rows {
		row.Site = strings.TrimSpace(row.Site)
		row.Measurement = strings.TrimSpace(row.Measurement)
		if !c.Window.Contains(row.Datetime) {
			continue
		}
		idx, ok := c.index[row.Site]
		if !ok {
			log.Warn().Str("site", row.Site).Str("measurement", row.Measurement).Msg("override for unknown site ignored")
			continue
		}
		site := &c.Sites[idx]
		if site.Overrides == nil {
			site.Overrides = make(map[string]models.Override)
		}
		o := site.Overrides[row.Measurement]
		at := row.Datetime
		switch models.OverrideKind(strings.ToLower(strings.TrimSpace(row.Kind))) {
		case models.OverrideOpen:
			if o.Open != nil {
				return fmt.Errorf("%w: site %q measurement %q has more than one open override in window", ErrDuplicateOverride, row.Site, row.Measurement)
			}
			o.Open = &at
		case models.OverrideClose:
			if o.Close != nil {
				return fmt.Errorf("%w: site %q measurement %q has more than one close override in window", ErrDuplicateOverride, row.Site, row.Measurement)
			}
			o.Close = &at
		default:
			return fmt.Errorf("site %q measurement %q: unknown override kind %q", row.Site, row.Measurement, row.Kind)
		}
		site.Overrides[row.Measurement] = o
	}
	return nil
}

// Site returns the resolved site by name.
func (c *Catalog) Site(name string) (models.Site, bool) {
	idx, ok := c.index[name]
	if !ok {
		return models.Site{}, false
	}
	return c.Sites[idx], true
}

// SiteNames returns site names in catalog order.
func (c *Catalog) SiteNames() []string {
	names := make([]string, len(c.Sites))
	for i, s := range c.Sites {
		names[i] = s.Name
	}
	return names
}

func pickRegion(candidates []string, tie TieBreak) string {
	if len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	if tie == TieBreakFirst {
		return sorted[0]
	}
	return sorted[len(sorted)-1]
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
