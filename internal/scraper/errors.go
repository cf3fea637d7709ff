package scraper

import "fmt"

// ScrapeBlockedError signals that the endpoint actively refused the
// scrape (anti-bot page, auth wall, 4xx). The caller must disable the
// source; retrying a blocked source only digs the hole deeper.
type ScrapeBlockedError struct {
	Reason string
	Tags   []string
}

func (e *ScrapeBlockedError) Error() string {
	return fmt.Sprintf("scrape blocked: %s", e.Reason)
}

// NewBlockedError creates a ScrapeBlockedError with health tags for the
// source registry
func NewBlockedError(reason string, tags ...string) *ScrapeBlockedError {
	return &ScrapeBlockedError{Reason: reason, Tags: tags}
}
