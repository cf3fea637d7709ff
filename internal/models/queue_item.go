package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoItem is returned when the queue has no pending items
var ErrNoItem = errors.New("no pending items in queue")

// ErrInvalidTransition is returned when a status change is not in the
// allowed transition set
var ErrInvalidTransition = errors.New("invalid status transition")

// ItemType identifies which processor handles a queue item
type ItemType string

const (
	ItemTypeJob             ItemType = "JOB"
	ItemTypeCompany         ItemType = "COMPANY"
	ItemTypeSourceDiscovery ItemType = "SOURCE_DISCOVERY"
	ItemTypeScrapeSource    ItemType = "SCRAPE_SOURCE"
)

// ItemStatus is the lifecycle state of a queue item
type ItemStatus string

const (
	ItemStatusPending     ItemStatus = "PENDING"
	ItemStatusProcessing  ItemStatus = "PROCESSING"
	ItemStatusSuccess     ItemStatus = "SUCCESS"
	ItemStatusFailed      ItemStatus = "FAILED"
	ItemStatusSkipped     ItemStatus = "SKIPPED"
	ItemStatusFiltered    ItemStatus = "FILTERED"
	ItemStatusNeedsReview ItemStatus = "NEEDS_REVIEW"
)

// Pipeline stages for the JOB decision tree. The same item id advances
// through stages via requeue; stage N+1 never starts before stage N
// commits its transition.
const (
	StageScrape  = "scrape"
	StageFilter  = "filter"
	StageAnalyze = "analyze"
	StageSave    = "save"
)

// DefaultMaxSpawnDepth caps how deep a spawn tree can grow
const DefaultMaxSpawnDepth = 10

// PipelineState is the scratchpad carried forward between re-dequeues of a
// JOB item. Each stage fills exactly one field; Extra holds forward-compat
// values that no stage owns.
type PipelineState struct {
	JobData      *Posting               `json:"job_data,omitempty"`
	FilterResult *FilterResult          `json:"filter_result,omitempty"`
	MatchResult  *MatchResult           `json:"match_result,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// StatusChange is one audit entry in an item's status history
type StatusChange struct {
	From    ItemStatus `json:"from"`
	To      ItemStatus `json:"to"`
	Message string     `json:"message,omitempty"`
	At      time.Time  `json:"at"`
}

// QueueItem is a unit of work in the durable queue. URL carries the
// real address the item works on; URLFingerprint is its canonical form
// (see common.URLFingerprint) and is the identity duplicate checks run
// against, so the same posting reached through tracking-param variants
// dedupes no matter which path enqueued it.
type QueueItem struct {
	ID             string          `json:"id" badgerhold:"key"`
	Type           ItemType        `json:"type" badgerhold:"index"`
	Status         ItemStatus      `json:"status" badgerhold:"index"`
	URL            string          `json:"url"`
	URLFingerprint string          `json:"url_fingerprint,omitempty" badgerhold:"index"`
	CompanyName    string          `json:"company_name,omitempty"`
	CompanyID      string          `json:"company_id,omitempty"`
	SourceID       string          `json:"source_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ResultMessage  string          `json:"result_message,omitempty"`
	ErrorDetails   string          `json:"error_details,omitempty"`
	PipelineStage  string          `json:"pipeline_stage,omitempty"`
	PipelineState  *PipelineState  `json:"pipeline_state,omitempty"`
	ScrapedData    json.RawMessage `json:"scraped_data,omitempty"`

	// Spawn tracking. TrackingID is shared by every item derived from the
	// same user-initiated work; AncestryChain lists ancestor ids oldest
	// last, so SpawnDepth == len(AncestryChain).
	TrackingID    string   `json:"tracking_id"`
	AncestryChain []string `json:"ancestry_chain,omitempty"`
	SpawnDepth    int      `json:"spawn_depth"`
	MaxSpawnDepth int      `json:"max_spawn_depth"`
	ParentItemID  string   `json:"parent_item_id,omitempty"`

	Attempts      int            `json:"attempts"`
	StatusHistory []StatusChange `json:"status_history,omitempty"`
}

// ValidateItemTransition reports whether a status change is allowed.
// PROCESSING→PENDING is a requeue and requires a pipeline stage.
func ValidateItemTransition(from, to ItemStatus, hasStage bool) error {
	switch from {
	case ItemStatusPending:
		if to == ItemStatusProcessing {
			return nil
		}
	case ItemStatusProcessing:
		switch to {
		case ItemStatusSuccess, ItemStatusFailed, ItemStatusSkipped,
			ItemStatusFiltered, ItemStatusNeedsReview:
			return nil
		case ItemStatusPending:
			if hasStage {
				return nil
			}
			return fmt.Errorf("%w: PROCESSING->PENDING requires a pipeline stage", ErrInvalidTransition)
		}
	}
	return fmt.Errorf("%w: %s->%s", ErrInvalidTransition, from, to)
}

// IsTerminal reports whether a status ends the item's lifecycle
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusSuccess, ItemStatusFailed, ItemStatusSkipped,
		ItemStatusFiltered, ItemStatusNeedsReview:
		return true
	}
	return false
}

// Live reports whether the item still occupies a slot for duplicate checks
func (s ItemStatus) Live() bool {
	return s == ItemStatusPending || s == ItemStatusProcessing
}

// SpawnKey is the identity used for duplicate-live-work detection
func (q *QueueItem) SpawnKey() string {
	return fmt.Sprintf("%s|%s|%s", q.Type, q.URLFingerprint, q.CompanyID)
}
