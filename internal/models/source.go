package models

import (
	"fmt"
	"time"
)

// SourceStatus is the lifecycle state of a registered source
type SourceStatus string

const (
	SourceStatusActive   SourceStatus = "ACTIVE"
	SourceStatusDisabled SourceStatus = "DISABLED"
	SourceStatusFailed   SourceStatus = "FAILED"
	SourceStatusDeleted  SourceStatus = "DELETED"
)

// Canonical non-recoverable disable tags. Sources carrying any of these
// are skipped by the recovery sweep.
const (
	DisableTagAntiBot      = "anti_bot"
	DisableTagAuthRequired = "auth_required"
	DisableTagProtectedAPI = "protected_api"
	DisableTagDNSError     = "dns_error"
	DisableTagRateLimited  = "rate_limited"
	DisableTagInvalid      = "invalid"
)

// Source is a declarative endpoint to scrape, owned exclusively by the
// source registry. Exactly one of CompanyID or AggregatorDomain is set
// (the company-OR-aggregator invariant).
type Source struct {
	ID               string       `json:"id" badgerhold:"key"`
	Name             string       `json:"name" badgerhold:"index"`
	SourceType       string       `json:"source_type" badgerhold:"index"`
	Status           SourceStatus `json:"status" badgerhold:"index"`
	Config           SourceConfig `json:"config"`
	Tags             []string     `json:"tags,omitempty"`
	CompanyID        string       `json:"company_id,omitempty" badgerhold:"index"`
	AggregatorDomain string       `json:"aggregator_domain,omitempty" badgerhold:"index"`
	LastScrapedAt    *time.Time   `json:"last_scraped_at,omitempty"`
	LastError        string       `json:"last_error,omitempty"`
	FailureCount     int          `json:"failure_count"`
	SuccessCount     int          `json:"success_count"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ValidateSourceTransition checks a status change against the allowed set:
// ACTIVE<->DISABLED, ACTIVE<->FAILED, DISABLED->ACTIVE, FAILED->ACTIVE.
// Idempotent moves (same status) are allowed.
func ValidateSourceTransition(from, to SourceStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case SourceStatusActive:
		if to == SourceStatusDisabled || to == SourceStatusFailed {
			return nil
		}
	case SourceStatusDisabled, SourceStatusFailed:
		if to == SourceStatusActive {
			return nil
		}
	}
	return fmt.Errorf("%w: %s->%s", ErrInvalidTransition, from, to)
}

// HasTag reports whether the source carries the given registry tag
func (s *Source) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
