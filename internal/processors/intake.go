package processors

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/filter"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// Intake is the single entry point moving scraped postings into the
// queue. It runs the cheap gates (duplicate URL, title allow/deny,
// pre-filter) so the JOB pipeline only ever sees survivors, each
// entering directly at the filter stage with job_data pre-populated.
type Intake struct {
	queue     interfaces.QueueService
	prefilter *filter.Prefilter
	title     models.TitlePolicy
	logger    arbor.ILogger
}

func NewIntake(queue interfaces.QueueService, policy *models.PrefilterPolicy, logger arbor.ILogger) *Intake {
	return &Intake{
		queue:     queue,
		prefilter: filter.NewPrefilter(policy, logger),
		title:     policy.Title,
		logger:    logger,
	}
}

// SubmitJobs enqueues one JOB item per surviving posting and returns the
// inserted count. parent, when present, makes every enqueued item a
// spawn-safe child sharing its tracking id; a nil parent enqueues roots.
func (in *Intake) SubmitJobs(ctx context.Context, postings []models.Posting, source *models.Source, companyID string, parent *models.QueueItem) (int, error) {
	isRemoteSource := sourceIndicatesRemote(source)

	inserted := 0
	for i := range postings {
		p := postings[i]
		if p.URL == "" {
			continue
		}

		exists, err := in.queue.URLExistsInQueue(ctx, p.URL)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}

		if !titleAllowed(p.Title, in.title) {
			in.logger.Debug().
				Str("title", p.Title).
				Str("url", p.URL).
				Msg("Posting dropped by title filter")
			continue
		}

		result := in.prefilter.Evaluate(&p, isRemoteSource)
		if !result.Passed {
			in.logger.Debug().
				Str("title", p.Title).
				Str("reason", result.Reason).
				Msg("Posting dropped by pre-filter")
			continue
		}

		item := &models.QueueItem{
			Type:          models.ItemTypeJob,
			URL:           p.URL,
			CompanyName:   p.Company,
			CompanyID:     companyID,
			PipelineStage: models.StageFilter,
			PipelineState: &models.PipelineState{JobData: &p},
		}
		if source != nil {
			item.SourceID = source.ID
		}

		var id string
		if parent != nil {
			id, err = in.queue.SpawnItemSafely(ctx, parent, item)
		} else {
			id, err = in.queue.AddItem(ctx, item)
		}
		if err != nil {
			return inserted, err
		}
		if id == "" {
			// spawn refused (duplicate live work or depth limit)
			continue
		}
		inserted++
	}

	sourceName := ""
	if source != nil {
		sourceName = source.Name
	}
	in.logger.Info().
		Str("source", sourceName).
		Int("scraped", len(postings)).
		Int("inserted", inserted).
		Msg("Intake submitted postings")

	return inserted, nil
}

// titleAllowed is the cheap title-only gate: any excluded keyword
// rejects, and when required keywords exist at least one must appear.
// Missing titles pass; the pre-filter owns deeper checks.
func titleAllowed(title string, policy models.TitlePolicy) bool {
	if title == "" {
		return true
	}
	lower := strings.ToLower(title)

	for _, kw := range policy.ExcludedKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}

	if len(policy.RequiredKeywords) == 0 {
		return true
	}
	for _, kw := range policy.RequiredKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// sourceIndicatesRemote reports whether the source advertises itself as
// remote-only, letting the pre-filter trust arrangement without location
// evidence
func sourceIndicatesRemote(source *models.Source) bool {
	if source == nil {
		return false
	}
	if source.HasTag("remote") {
		return true
	}
	name := strings.ToLower(source.Name)
	domain := strings.ToLower(source.AggregatorDomain)
	return strings.Contains(name, "remote") || strings.Contains(domain, "remote")
}
