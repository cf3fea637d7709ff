package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/prospect/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string                 `toml:"environment"` // "development" or "production"
	Queue       QueueConfig            `toml:"queue"`
	Storage     StorageConfig          `toml:"storage"`
	Scraper     ScraperConfig          `toml:"scraper"`
	Prefilter   models.PrefilterPolicy `toml:"prefilter"`
	Match       models.MatchPolicy     `toml:"match"`
	LLM         LLMConfig              `toml:"llm"`
	Claude      ClaudeConfig           `toml:"claude"`
	Gemini      GeminiConfig           `toml:"gemini"`
	Search      SearchConfig           `toml:"search"`
	Scheduler   SchedulerConfig        `toml:"scheduler"`
	Logging     LoggingConfig          `toml:"logging"`
}

// QueueConfig controls the worker pool and lease behavior
type QueueConfig struct {
	PollInterval     string `toml:"poll_interval" validate:"required"`  // e.g. "1s"
	Concurrency      int    `toml:"concurrency" validate:"min=1"`       // number of concurrent workers
	LeaseTimeout     string `toml:"lease_timeout" validate:"required"`  // e.g. "5m" - PROCESSING items older than this are reclaimed
	MaxAttempts      int    `toml:"max_attempts" validate:"min=1"`      // attempts before an item is handed to agent review
	RecoveryInterval string `toml:"recovery_interval"`                  // how often the recovery sweep runs (default "1m")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// ScraperConfig contains HTTP and rendering settings for the generic scraper
type ScraperConfig struct {
	UserAgent           string        `toml:"user_agent"`
	RequestTimeout      time.Duration `toml:"request_timeout"`        // list fetch timeout (default 30s)
	DetailTimeout       time.Duration `toml:"detail_timeout"`         // detail-page fetch timeout (default 15s)
	FetchDelaySeconds   float64       `toml:"fetch_delay_seconds"`    // applied after every detail request
	MaxHTMLSampleLength int           `toml:"max_html_sample_length"` // sample passed to source analysis (default 8000)
	RenderWaitTime      time.Duration `toml:"render_wait_time"`       // default wait when render_wait_for is unset
	MaxPages            int           `toml:"max_pages"`              // auto-pagination hard cap (default 50)
}

// LLMConfig selects the default AI provider
type LLMConfig struct {
	Enabled         bool   `toml:"enabled"`
	DefaultProvider string `toml:"default_provider"` // "claude" or "gemini"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default "claude-haiku-3-5-20241022"
	MaxTokens   int     `toml:"max_tokens"`  // default 4096
	Temperature float32 `toml:"temperature"` // default 0.2
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"` // default "gemini-3-flash-preview"
	Temperature float32 `toml:"temperature"`
}

// SearchConfig contains the optional web-search collaborator settings
type SearchConfig struct {
	Enabled    bool   `toml:"enabled"`
	Endpoint   string `toml:"endpoint"`
	APIKey     string `toml:"api_key"`
	MaxResults int    `toml:"max_results"` // default 5
}

// SchedulerConfig drives periodic source rotation and recovery
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`
	ScrapeSchedule   string `toml:"scrape_schedule"`    // cron expression, default "0 */2 * * *"
	MaxSources       int    `toml:"max_sources"`        // sources scraped per tick (default 5)
	RecoverySchedule string `toml:"recovery_schedule"`  // default "30 */6 * * *"
	MinDisabledHours int    `toml:"min_disabled_hours"` // recovery window (default 24)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultConfig returns a configuration with working defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			PollInterval:     "1s",
			Concurrency:      4,
			LeaseTimeout:     "5m",
			MaxAttempts:      3,
			RecoveryInterval: "1m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/prospect"},
		},
		Scraper: ScraperConfig{
			UserAgent:           "prospect/1.0 (+job discovery pipeline)",
			RequestTimeout:      30 * time.Second,
			DetailTimeout:       15 * time.Second,
			FetchDelaySeconds:   1.0,
			MaxHTMLSampleLength: 8000,
			RenderWaitTime:      3 * time.Second,
			MaxPages:            50,
		},
		Prefilter: models.PrefilterPolicy{
			WorkArrangement: models.WorkArrangementPolicy{
				AllowRemote:          true,
				AllowHybrid:          true,
				AllowOnsite:          false,
				RemoteKeywords:       []string{"remote", "anywhere", "distributed", "work from home"},
				MaxTimezoneDiffHours: 6,
			},
			Freshness: models.FreshnessPolicy{MaxAgeDays: 30},
		},
		Match: models.MatchPolicy{
			MinScore: 60,
			StrikeEngine: models.StrikeEnginePolicy{
				Enabled:              true,
				StrikeThreshold:      5,
				RejectDays:           7,
				StrikeDays:           1,
				AgeStrikePoints:      1,
				MinDescriptionLength: 200,
				QualityStrikePoints:  1,
				TechnologyStrikePoints: 2,
			},
		},
		LLM: LLMConfig{
			Enabled:         false,
			DefaultProvider: "claude",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Gemini: GeminiConfig{
			Model: "gemini-3-flash-preview",
		},
		Search: SearchConfig{MaxResults: 5},
		Scheduler: SchedulerConfig{
			ScrapeSchedule:   "0 */2 * * *",
			MaxSources:       5,
			RecoverySchedule: "30 */6 * * *",
			MinDisabledHours: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadConfig reads and validates a TOML config file, overlaying defaults.
// Missing required policy keys fail fast at construction.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("initialization error: %w", err)
	}

	return config, nil
}

// Validate applies struct tags plus the cross-field checks the tags
// cannot express
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if _, err := time.ParseDuration(c.Queue.PollInterval); err != nil {
		return fmt.Errorf("queue.poll_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Queue.LeaseTimeout); err != nil {
		return fmt.Errorf("queue.lease_timeout: %w", err)
	}
	if c.Queue.RecoveryInterval != "" {
		if _, err := time.ParseDuration(c.Queue.RecoveryInterval); err != nil {
			return fmt.Errorf("queue.recovery_interval: %w", err)
		}
	}

	if c.Match.StrikeEngine.Enabled && c.Match.StrikeEngine.StrikeThreshold <= 0 {
		return fmt.Errorf("match.strike_engine.strike_threshold must be positive when the strike engine is enabled")
	}

	if c.Match.MinScore < 0 || c.Match.MinScore > 100 {
		return fmt.Errorf("match.min_score must be within [0, 100]")
	}

	return nil
}

// PollInterval parses the configured poll interval
func (q *QueueConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// LeaseTimeoutDuration parses the configured lease timeout
func (q *QueueConfig) LeaseTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(q.LeaseTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// RecoveryIntervalDuration parses the recovery sweep interval
func (q *QueueConfig) RecoveryIntervalDuration() time.Duration {
	d, err := time.ParseDuration(q.RecoveryInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
