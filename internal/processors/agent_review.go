package processors

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/interfaces"
	"github.com/ternarybob/prospect/internal/models"
)

// ReviewProcessor handles items that exhausted their attempts. Instead
// of a terminal FAILED it parks them NEEDS_REVIEW, attaching a short
// LLM post-mortem when an agent is configured.
type ReviewProcessor struct {
	queue  interfaces.QueueService
	agent  interfaces.Agent
	logger arbor.ILogger
}

func NewReviewProcessor(queue interfaces.QueueService, agent interfaces.Agent, logger arbor.ILogger) *ReviewProcessor {
	return &ReviewProcessor{queue: queue, agent: agent, logger: logger}
}

func (rp *ReviewProcessor) Type() models.ItemType {
	return models.ItemType("REVIEW")
}

func (rp *ReviewProcessor) Process(ctx context.Context, item *models.QueueItem) error {
	message := fmt.Sprintf("exhausted %d attempts", item.Attempts)

	if rp.agent != nil {
		if postMortem := rp.postMortem(ctx, item); postMortem != "" {
			message = postMortem
		}
	}

	rp.logger.Warn().
		Str("item_id", item.ID).
		Str("type", string(item.Type)).
		Int("attempts", item.Attempts).
		Msg("Item parked for review")

	return rp.queue.UpdateStatus(ctx, item.ID, models.ItemStatusNeedsReview, message, nil, "", "")
}

func (rp *ReviewProcessor) postMortem(ctx context.Context, item *models.QueueItem) string {
	var history strings.Builder
	for _, change := range item.StatusHistory {
		fmt.Fprintf(&history, "- %s -> %s: %s\n", change.From, change.To, change.Message)
	}

	prompt := fmt.Sprintf(`A pipeline work item failed repeatedly. Write a one-paragraph
post-mortem for a human reviewer: the likely root cause and what to check.

Item type: %s
URL: %s
Stage: %s
Attempts: %d
Last error: %s

Status history:
%s`,
		item.Type, item.URL, item.PipelineStage, item.Attempts, item.ErrorDetails, history.String())

	summary, err := rp.agent.Execute(ctx, &interfaces.AgentRequest{
		TaskType:  "failure_post_mortem",
		Prompt:    prompt,
		MaxTokens: 300,
	})
	if err != nil {
		rp.logger.Debug().Err(err).Str("item_id", item.ID).Msg("Post-mortem generation failed")
		return ""
	}
	return strings.TrimSpace(summary)
}
