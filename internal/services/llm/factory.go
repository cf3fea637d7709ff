package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
)

// NewAgent creates the configured LLM agent. A disabled LLM section
// yields a nil agent; callers treat that as "run without agent steps".
func NewAgent(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (interfaces.Agent, error) {
	if !cfg.LLM.Enabled {
		logger.Info().Msg("LLM disabled, agent-backed steps will be skipped")
		return nil, nil
	}

	logger.Info().Str("provider", cfg.LLM.DefaultProvider).Msg("Initializing LLM agent")

	switch cfg.LLM.DefaultProvider {
	case "claude", "":
		return NewClaudeAgent(&cfg.Claude, logger)
	case "gemini":
		return NewGeminiAgent(ctx, &cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q: must be 'claude' or 'gemini'", cfg.LLM.DefaultProvider)
	}
}
