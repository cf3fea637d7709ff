// Package app wires the storage, queue, processors, and periodic
// services into one runnable pipeline.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/processors"
	"github.com/ternarybob/prospect/internal/queue"
	"github.com/ternarybob/prospect/internal/services/llm"
	"github.com/ternarybob/prospect/internal/services/renderer"
	"github.com/ternarybob/prospect/internal/services/scheduler"
	"github.com/ternarybob/prospect/internal/services/search"
	"github.com/ternarybob/prospect/internal/sources"
	storage "github.com/ternarybob/prospect/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB        *storage.BadgerDB
	Queue     *queue.Manager
	Registry  *sources.Registry
	Companies interfaces.CompanyStorage
	Matches   interfaces.MatchStorage

	Agent    interfaces.Agent
	Search   interfaces.SearchClient
	Renderer *renderer.ChromeRenderer

	dispatcher *queue.Dispatcher
	workers    *queue.WorkerPool
	recovery   *queue.RecoverySweep
	scheduler  *scheduler.Service
}

// New initializes the application with all dependencies. Nothing starts
// running until Start.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := storage.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	a.DB = db

	queueStorage := storage.NewQueueStorage(db, logger)
	sourceStorage := storage.NewSourceStorage(db, logger)
	a.Companies = storage.NewCompanyStorage(db, logger)
	a.Matches = storage.NewMatchStorage(db, logger)

	a.Queue = queue.NewManager(queueStorage, logger)
	a.Registry = sources.NewRegistry(sourceStorage, logger)

	agent, err := llm.NewAgent(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize LLM agent: %w", err)
	}
	a.Agent = agent

	searchClient, err := search.NewClient(&cfg.Search, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize search client: %w", err)
	}
	if searchClient != nil {
		a.Search = searchClient
	}

	a.Renderer = renderer.NewChromeRenderer(&cfg.Scraper, logger)

	httpClient := &http.Client{Timeout: cfg.Scraper.RequestTimeout}
	analyzer := sources.NewAnalyzer(httpClient, &cfg.Scraper, a.Agent, logger)
	intake := processors.NewIntake(a.Queue, &cfg.Prefilter, logger)
	companyInfo := processors.NewCompanyInfo(a.Companies, a.Registry, a.Search, a.Agent, httpClient, &cfg.Scraper, logger)

	a.dispatcher = queue.NewDispatcher(a.Queue, cfg.Queue.MaxAttempts, logger)
	a.dispatcher.Register(processors.NewJobProcessor(
		a.Queue, a.Registry, a.Matches, companyInfo,
		&cfg.Prefilter, &cfg.Match,
		httpClient, a.Renderer, &cfg.Scraper, logger))
	a.dispatcher.Register(processors.NewCompanyProcessor(a.Queue, a.Registry, companyInfo, logger))
	a.dispatcher.Register(processors.NewSourceDiscoveryProcessor(
		a.Queue, a.Registry, analyzer, a.Companies, a.Search, httpClient, &cfg.Scraper, logger))
	a.dispatcher.Register(processors.NewScrapeSourceProcessor(
		a.Queue, a.Registry, analyzer, intake, httpClient, a.Renderer, &cfg.Scraper, logger))
	a.dispatcher.RegisterReview(processors.NewReviewProcessor(a.Queue, a.Agent, logger))

	a.workers = queue.NewWorkerPool(a.Queue, a.dispatcher, &cfg.Queue, logger)
	a.recovery = queue.NewRecoverySweep(queueStorage, &cfg.Queue, logger)
	a.scheduler = scheduler.NewService(a.Queue, a.Registry, &cfg.Scheduler, logger)

	logger.Info().
		Str("storage_path", cfg.Storage.Badger.Path).
		Int("concurrency", cfg.Queue.Concurrency).
		Bool("llm_enabled", cfg.LLM.Enabled).
		Bool("search_enabled", cfg.Search.Enabled).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialized")

	return a, nil
}

// Start launches the worker pool, recovery sweep, and scheduler
func (a *App) Start() error {
	a.recovery.Start()
	a.workers.Start()
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	return nil
}

// Close stops all background work and releases resources. Workers
// finish their current item; anything mid-lease is reclaimed by the
// recovery sweep on next startup.
func (a *App) Close() error {
	a.scheduler.Stop()
	a.workers.Stop()
	a.recovery.Stop()
	a.Renderer.Close()

	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	a.Logger.Info().Msg("Application shut down")
	return nil
}
