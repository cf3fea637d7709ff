package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
)

// ClaudeAgent implements the Agent interface against the Anthropic API
type ClaudeAgent struct {
	config *common.ClaudeConfig
	client anthropic.Client
	logger arbor.ILogger
}

func NewClaudeAgent(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeAgent, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set claude.api_key in config)")
	}
	if config.Model == "" {
		config.Model = "claude-haiku-3-5-20241022"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Debug().
		Str("model", config.Model).
		Int("max_tokens", config.MaxTokens).
		Float32("temperature", config.Temperature).
		Msg("Claude agent initialized")

	return &ClaudeAgent{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

func (a *ClaudeAgent) Execute(ctx context.Context, req *interfaces.AgentRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = a.config.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(float64(temperature))
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated for task %s", req.TaskType)
	}

	a.logger.Debug().
		Str("task_type", req.TaskType).
		Int("prompt_len", len(req.Prompt)).
		Int("response_len", response.Len()).
		Msg("Claude task completed")

	return response.String(), nil
}
