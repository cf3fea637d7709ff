package interfaces

import (
	"context"
)

// RenderResult is the outcome of one headless page render
type RenderResult struct {
	FinalURL     string
	Status       int
	HTML         string
	DurationMs   int64
	RequestCount int
	Errors       []string
}

// Renderer renders JavaScript-heavy pages; the scraper delegates to it
// when a source sets requires_js.
type Renderer interface {
	Render(ctx context.Context, url, waitFor string, timeoutMs int) (*RenderResult, error)
}

// SearchResult is one web-search hit
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient is the optional web-search collaborator
type SearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// AgentRequest is a narrow LLM task request
type AgentRequest struct {
	TaskType    string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Agent is the narrow LLM interface. Only source analysis and the
// COMPANY processor call it, and only when the deterministic path is
// insufficient.
type Agent interface {
	Execute(ctx context.Context, req *AgentRequest) (string, error)
}
