package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
)

// GeminiAgent implements the Agent interface against the Gemini API.
// Rate-limit errors are retried with the API-suggested delay.
type GeminiAgent struct {
	config *common.GeminiConfig
	client *genai.Client
	retry  *retryConfig
	logger arbor.ILogger
}

func NewGeminiAgent(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiAgent, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set gemini.api_key in config)")
	}
	if config.Model == "" {
		config.Model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	logger.Debug().
		Str("model", config.Model).
		Float32("temperature", config.Temperature).
		Msg("Gemini agent initialized")

	return &GeminiAgent{
		config: config,
		client: client,
		retry:  defaultRetryConfig(),
		logger: logger,
	}, nil
}

func (a *GeminiAgent) Execute(ctx context.Context, req *interfaces.AgentRequest) (string, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = a.config.Temperature
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	var lastErr error
	for attempt := 0; attempt <= a.retry.maxRetries; attempt++ {
		if attempt > 0 {
			delay := a.retry.backoff(attempt-1, extractRetryDelay(lastErr))
			a.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Gemini rate limited, backing off")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := a.client.Models.GenerateContent(ctx, a.config.Model, contents, cfg)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("Gemini API call failed: %w", err)
		}

		text := collectText(resp)
		if text == "" {
			return "", fmt.Errorf("no response generated for task %s", req.TaskType)
		}

		a.logger.Debug().
			Str("task_type", req.TaskType).
			Int("response_len", len(text)).
			Msg("Gemini task completed")

		return text, nil
	}

	return "", fmt.Errorf("Gemini rate limit retries exhausted: %w", lastErr)
}

// collectText joins the text parts of the first candidate carrying any
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.WriteString(part.Text)
			}
		}
		if out.Len() > 0 {
			break
		}
	}
	return out.String()
}
