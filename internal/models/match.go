package models

import "time"

// Strike is one weighted reject signal recorded by the strike engine
type Strike struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Reason   string  `json:"reason"`
	Detail   string  `json:"detail,omitempty"`
	Points   float64 `json:"points"`
}

// FilterResult is the outcome of the two-tier filter (pre-filter + strikes)
type FilterResult struct {
	Passed          bool     `json:"passed"`
	Reason          string   `json:"reason,omitempty"`
	HardReject      bool     `json:"hard_reject,omitempty"`
	Strikes         []Strike `json:"strikes,omitempty"`
	StrikeTotal     float64  `json:"strike_total"`
	StrikeThreshold float64  `json:"strike_threshold,omitempty"`
	ChecksPerformed []string `json:"checks_performed,omitempty"`
	ChecksSkipped   []string `json:"checks_skipped,omitempty"`
}

// ScoreAdjustment records one scoring category's contribution
type ScoreAdjustment struct {
	Category string  `json:"category"`
	Reason   string  `json:"reason"`
	Points   float64 `json:"points"`
}

// ScoreBreakdown is the deterministic scoring engine's full audit trail
type ScoreBreakdown struct {
	BaseScore       float64           `json:"base_score"`
	FinalScore      float64           `json:"final_score"`
	Adjustments     []ScoreAdjustment `json:"adjustments"`
	Passed          bool              `json:"passed"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

// MatchResult is what the analyze stage stores into pipeline state
type MatchResult struct {
	Score          float64        `json:"score"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	CompanyContext string         `json:"company_context,omitempty"`
}

// JobMatch is the durable record persisted by the save stage
type JobMatch struct {
	ID         string         `json:"id" badgerhold:"key"`
	URL        string         `json:"url" badgerhold:"index"`
	Title      string         `json:"title"`
	Company    string         `json:"company,omitempty"`
	CompanyID  string         `json:"company_id,omitempty" badgerhold:"index"`
	SourceID   string         `json:"source_id,omitempty"`
	MatchScore float64        `json:"match_score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	Posting    Posting        `json:"posting"`
	CreatedAt  time.Time      `json:"created_at"`
}
