package scraper

import (
	"context"
	"fmt"

	"github.com/ternarybob/prospect/internal/models"
)

const defaultMaxPages = 50

// scrapePaginated walks a POST offset/limit endpoint page by page. The
// starting offset and the page size come from post_body when it carries
// them, so a config can resume mid-board or match a provider's fixed
// limit. It stops when a page comes back short, empty, or the hard page
// cap is reached. Auth is re-applied on every page request.
func (s *Scraper) scrapePaginated(ctx context.Context) ([]models.Posting, error) {
	pageSize := s.cfg.EffectivePageSize()
	if v, ok := bodyInt(s.cfg.PostBody["limit"]); ok && v > 0 {
		pageSize = v
	}
	offset := 0
	if v, ok := bodyInt(s.cfg.PostBody["offset"]); ok && v > 0 {
		offset = v
	}

	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = s.settings.MaxPages
	}
	if maxPages <= 0 || maxPages > defaultMaxPages {
		maxPages = defaultMaxPages
	}

	var postings []models.Posting
	page := 0
	for ; page < maxPages; page++ {
		body := make(map[string]interface{}, len(s.cfg.PostBody))
		for k, v := range s.cfg.PostBody {
			body[k] = v
		}
		body["offset"] = offset
		body["limit"] = pageSize

		respBody, err := s.fetch(ctx, s.effectiveURL(), s.cfg.Method, body)
		if err != nil {
			// Partial results are worse than a clean failure here: the
			// caller would treat a truncated page 0 as the whole board.
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		items, err := navigateResponsePath(respBody, s.cfg.ResponsePath)
		if err != nil {
			return nil, fmt.Errorf("page %d: navigate response_path %q: %w", page, s.cfg.ResponsePath, err)
		}

		if len(items) == 0 {
			if page == 0 {
				if marker := detectBlockedBody(string(respBody)); marker != "" {
					return nil, NewBlockedError(blockedReasonForMarker(marker), tagsForMarker(marker)...)
				}
			}
			break
		}

		postings = append(postings, s.buildPostings(items)...)

		if len(items) < pageSize {
			break
		}

		offset += pageSize

		s.logger.Debug().
			Str("url", s.effectiveURL()).
			Int("page", page).
			Int("total", len(postings)).
			Msg("Fetched pagination page")
	}

	if page == maxPages {
		s.logger.Warn().
			Str("url", s.effectiveURL()).
			Int("pages", maxPages).
			Int("total", len(postings)).
			Msg("Pagination stopped at page cap, results may be truncated")
	}

	return postings, nil
}

// bodyInt coerces the numeric types a post_body value can arrive as
// after TOML or JSON decoding
func bodyInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
