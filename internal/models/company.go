package models

import "time"

// Company data quality buckets, derived from how much of the enrichment
// text is populated
const (
	DataQualityComplete = "complete"
	DataQualityPartial  = "partial"
	DataQualityMinimal  = "minimal"
)

// Company is an enriched record keyed by name. Its lifecycle is
// independent of sources; the source registry may link a source to a
// company after the fact via the NULL-only FK repair.
type Company struct {
	ID            string    `json:"id" badgerhold:"key"`
	Name          string    `json:"name" badgerhold:"index"`
	Website       string    `json:"website,omitempty"`
	About         string    `json:"about,omitempty"`
	Culture       string    `json:"culture,omitempty"`
	Mission       string    `json:"mission,omitempty"`
	Headquarters  string    `json:"headquarters,omitempty"`
	EmployeeCount int       `json:"employee_count,omitempty"`
	TechStack     []string  `json:"tech_stack,omitempty"`
	IsRemoteFirst bool      `json:"is_remote_first,omitempty"`
	Industry      string    `json:"industry,omitempty"`
	Tier          string    `json:"tier,omitempty"` // S, A, B, C or D
	PriorityScore float64   `json:"priority_score,omitempty"`
	DataQuality   string    `json:"data_quality,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Quality derives the data_quality bucket from enrichment text lengths
func (c *Company) Quality() string {
	if len(c.About) >= 200 && len(c.Culture) >= 100 {
		return DataQualityComplete
	}
	if len(c.About) >= 50 {
		return DataQualityPartial
	}
	return DataQualityMinimal
}
