package models

// Posting is a normalized job posting emitted by the generic scraper.
// Every field defaults to the empty string; extraction never substitutes
// placeholder values like "Unknown".
type Posting struct {
	Title          string            `json:"title"`
	URL            string            `json:"url"`
	Company        string            `json:"company,omitempty"`
	Location       string            `json:"location,omitempty"`
	Description    string            `json:"description,omitempty"`
	PostedDate     string            `json:"posted_date,omitempty"`
	Salary         string            `json:"salary,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Departments    []string          `json:"departments,omitempty"`
	Offices        []string          `json:"offices,omitempty"`
	CompanyWebsite string            `json:"company_website,omitempty"`

	// Structured salary bounds when the source exposes them separately
	SalaryMin float64 `json:"salary_min,omitempty"`
	SalaryMax float64 `json:"salary_max,omitempty"`

	// Explicit remote flag from sources that expose one
	IsRemote bool `json:"is_remote,omitempty"`

	// EmploymentType as published (normalized downstream by the pre-filter)
	EmploymentType string `json:"employment_type,omitempty"`
}

// Sparse reports whether the posting is missing the fields a usable scrape
// must produce. A sparse first result triggers source self-heal.
func (p *Posting) Sparse() bool {
	return p.Title == "" || p.URL == "" || p.Description == ""
}
