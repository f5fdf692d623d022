package models

import "time"

// OverrideKind distinguishes manual open and close dates.
type OverrideKind string

const (
	OverrideOpen  OverrideKind = "open"
	OverrideClose OverrideKind = "close"
)

// Site is a monitoring site resolved from the catalog.
type Site struct {
	Name      string              `json:"name"`
	Region    string              `json:"region"`
	Overrides map[string]Override `json:"overrides,omitempty"`
}

// Override returns the override set for a raw measurement, if any.
func (s Site) Override(measurement string) Override {
	if s.Overrides == nil {
		return Override{}
	}
	return s.Overrides[measurement]
}

// Override holds the manual dates at which monitoring of one measurement at a
// site actually started or stopped. Nil fields are unset.
type Override struct {
	Open  *time.Time `json:"open,omitempty"`
	Close *time.Time `json:"close,omitempty"`
}

// MeasurementDef maps a raw measurement name onto a reporting bucket.
type MeasurementDef struct {
	Raw    string `json:"raw"`
	Bucket string `json:"bucket"`
}

// RegionGroup names a report region and the catalog regions it covers.
type RegionGroup struct {
	Name           string   `yaml:"name" json:"name"`
	CatalogRegions []string `yaml:"catalog_regions" json:"catalog_regions"`
}

// Sample is one timestamped value of a raw series.
type Sample struct {
	Time  time.Time
	Value float64
}
