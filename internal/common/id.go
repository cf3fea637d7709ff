package common

import (
	"github.com/google/uuid"
)

// NewItemID generates a unique queue item ID with the "item_" prefix
func NewItemID() string {
	return "item_" + uuid.New().String()
}

// NewSourceID generates a unique source ID with the "src_" prefix
func NewSourceID() string {
	return "src_" + uuid.New().String()
}

// NewCompanyID generates a unique company ID with the "co_" prefix
func NewCompanyID() string {
	return "co_" + uuid.New().String()
}

// NewMatchID generates a unique job-match ID with the "match_" prefix
func NewMatchID() string {
	return "match_" + uuid.New().String()
}

// NewTrackingID generates the UUID shared across an entire spawn tree
func NewTrackingID() string {
	return uuid.New().String()
}
