// Package renderer renders JavaScript-heavy pages through a headless
// Chrome instance. Sources flagged requires_js route their fetches here
// instead of the plain HTTP client.
package renderer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/common"
	"github.com/ternarybob/prospect/internal/interfaces"
)

// ChromeRenderer holds one exec allocator; each Render gets its own tab
// context so a wedged page cannot poison later renders.
type ChromeRenderer struct {
	settings *common.ScraperConfig
	logger   arbor.ILogger

	mu              sync.Mutex
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

func NewChromeRenderer(settings *common.ScraperConfig, logger arbor.ILogger) *ChromeRenderer {
	return &ChromeRenderer{settings: settings, logger: logger}
}

// allocator lazily starts the browser process. Deployments that never
// hit a requires_js source never pay the Chrome startup cost.
func (r *ChromeRenderer) allocator() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allocatorCtx != nil {
		return r.allocatorCtx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(r.settings.UserAgent),
	)
	r.allocatorCtx, r.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)

	r.logger.Info().
		Str("user_agent", r.settings.UserAgent).
		Msg("Headless browser allocator started")

	return r.allocatorCtx
}

// Close shuts down the browser process
func (r *ChromeRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allocatorCancel != nil {
		r.allocatorCancel()
		r.allocatorCtx = nil
		r.allocatorCancel = nil
	}
}

// Render navigates to the URL, waits for the page to settle, and
// returns the rendered HTML. waitFor is an optional CSS selector to
// block on before sampling; when empty the configured render wait time
// applies instead.
func (r *ChromeRenderer) Render(ctx context.Context, url, waitFor string, timeoutMs int) (*interfaces.RenderResult, error) {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = r.settings.RequestTimeout
	}

	tabCtx, tabCancel := chromedp.NewContext(r.allocator())
	defer tabCancel()

	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	result := &interfaces.RenderResult{}
	var resultMu sync.Mutex

	// count requests and capture the document response status off the
	// CDP event stream
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			resultMu.Lock()
			result.RequestCount++
			resultMu.Unlock()
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				resultMu.Lock()
				if result.Status == 0 {
					result.Status = int(e.Response.Status)
				}
				resultMu.Unlock()
			}
		case *network.EventLoadingFailed:
			resultMu.Lock()
			result.Errors = append(result.Errors, e.ErrorText)
			resultMu.Unlock()
		}
	})

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(url),
	}
	if waitFor != "" {
		actions = append(actions, chromedp.WaitVisible(waitFor, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(r.settings.RenderWaitTime))
	}
	actions = append(actions,
		chromedp.Location(&result.FinalURL),
		chromedp.OuterHTML("html", &result.HTML),
	)

	start := time.Now()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	r.logger.Debug().
		Str("url", url).
		Str("final_url", result.FinalURL).
		Int("status", result.Status).
		Int("requests", result.RequestCount).
		Int64("duration_ms", result.DurationMs).
		Msg("Page rendered")

	return result, nil
}
