// Package scheduler drives the periodic work that keeps the pipeline
// self-sustaining: rotating ACTIVE sources through scrapes and giving
// transiently disabled sources another chance.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
	"github.com/ternarybob/prospect/internal/sources"
)

// permanentTags mark failure modes that retrying will not fix; the
// recovery tick never re-enables sources carrying one.
var permanentTags = []string{
	models.DisableTagAntiBot,
	models.DisableTagAuthRequired,
	models.DisableTagProtectedAPI,
}

// Service runs the scrape rotation and recovery ticks on cron schedules.
type Service struct {
	queue    interfaces.QueueService
	registry *sources.Registry
	config   *common.SchedulerConfig
	cron     *cron.Cron
	logger   arbor.ILogger

	mu      sync.Mutex
	running bool
}

func NewService(queue interfaces.QueueService, registry *sources.Registry, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		queue:    queue,
		registry: registry,
		config:   config,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers both ticks and begins the cron loop. A disabled
// scheduler config is a no-op, not an error.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled, sources will only scrape on demand")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	scrapeExpr := s.config.ScrapeSchedule
	if scrapeExpr == "" {
		scrapeExpr = "0 */2 * * *"
	}
	recoveryExpr := s.config.RecoverySchedule
	if recoveryExpr == "" {
		recoveryExpr = "30 */6 * * *"
	}

	if _, err := s.cron.AddFunc(scrapeExpr, s.scrapeTick); err != nil {
		return fmt.Errorf("register scrape schedule %q: %w", scrapeExpr, err)
	}
	if _, err := s.cron.AddFunc(recoveryExpr, s.recoveryTick); err != nil {
		return fmt.Errorf("register recovery schedule %q: %w", recoveryExpr, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("scrape_schedule", scrapeExpr).
		Str("recovery_schedule", recoveryExpr).
		Int("max_sources", s.config.MaxSources).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop, waiting for any in-flight tick to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// scrapeTick enqueues SCRAPE_SOURCE work for the ACTIVE sources that
// have gone longest without a scrape, up to max_sources per tick.
func (s *Service) scrapeTick() {
	ctx := context.Background()

	active, err := s.registry.GetActiveSources(ctx, "", nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scrape tick failed to list sources")
		return
	}

	// never-scraped sources first, then oldest scrape
	sort.Slice(active, func(i, j int) bool {
		ti, tj := active[i].LastScrapedAt, active[j].LastScrapedAt
		if ti == nil {
			return tj != nil
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})

	maxSources := s.config.MaxSources
	if maxSources <= 0 {
		maxSources = 5
	}

	enqueued := 0
	for _, src := range active {
		if enqueued >= maxSources {
			break
		}

		exists, err := s.queue.URLExistsInQueue(ctx, src.Config.URL)
		if err != nil {
			s.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Queue lookup failed, skipping source")
			continue
		}
		if exists {
			continue
		}

		item := &models.QueueItem{
			Type:        models.ItemTypeScrapeSource,
			URL:         src.Config.URL,
			SourceID:    src.ID,
			CompanyID:   src.CompanyID,
			CompanyName: src.Config.CompanyName,
		}
		if _, err := s.queue.AddItem(ctx, item); err != nil {
			s.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Failed to enqueue scrape")
			continue
		}
		enqueued++
	}

	s.logger.Info().
		Int("active", len(active)).
		Int("enqueued", enqueued).
		Msg("Scrape tick completed")
}

// recoveryTick re-enables sources disabled long enough ago that their
// failure may have been transient. Permanently tagged sources stay down.
func (s *Service) recoveryTick() {
	ctx := context.Background()

	maxSources := s.config.MaxSources
	if maxSources <= 0 {
		maxSources = 5
	}

	candidates, err := s.registry.GetDisabledSources(ctx, permanentTags, s.config.MinDisabledHours, maxSources)
	if err != nil {
		s.logger.Error().Err(err).Msg("Recovery tick failed to list disabled sources")
		return
	}

	recovered := 0
	for _, src := range candidates {
		if err := s.registry.ReEnableSource(ctx, src.ID, "recovery sweep retry"); err != nil {
			s.logger.Warn().Err(err).Str("source_id", src.ID).Msg("Failed to re-enable source")
			continue
		}
		recovered++
	}

	s.logger.Info().
		Int("candidates", len(candidates)).
		Int("recovered", recovered).
		Msg("Recovery tick completed")
}
