package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospect/internal/interfaces"
)

// ChromeRenderer renders JavaScript-heavy pages through a shared
// headless Chrome allocator. Each Render call gets its own tab context;
// the allocator and its browser process are reused across calls.
type ChromeRenderer struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	mu              sync.Mutex
	userAgent       string
	defaultWait     time.Duration
	logger          arbor.ILogger
	closed          bool
}

// NewChromeRenderer starts the headless allocator and verifies Chrome is
// runnable
func NewChromeRenderer(userAgent string, defaultWait time.Duration, logger arbor.ILogger) (*ChromeRenderer, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	// Startup probe so a missing Chrome binary fails here instead of on
	// the first scrape
	probeCtx, probeCancel := chromedp.NewContext(allocatorCtx)
	defer probeCancel()
	testCtx, testCancel := context.WithTimeout(probeCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		allocatorCancel()
		return nil, fmt.Errorf("chrome startup test failed: %w", err)
	}

	logger.Info().
		Str("user_agent", userAgent).
		Dur("default_wait", defaultWait).
		Msg("Headless renderer initialized")

	return &ChromeRenderer{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: allocatorCancel,
		userAgent:       userAgent,
		defaultWait:     defaultWait,
		logger:          logger,
	}, nil
}

// Render navigates to the URL, waits for the page to settle, and
// returns the final DOM. waitFor is an optional CSS selector to block
// on; when empty the renderer sleeps the configured default instead.
func (r *ChromeRenderer) Render(ctx context.Context, url, waitFor string, timeoutMs int) (*interfaces.RenderResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("renderer is closed")
	}
	r.mu.Unlock()

	if timeoutMs < 1000 {
		timeoutMs = 30000
	}

	tabCtx, tabCancel := chromedp.NewContext(r.allocatorCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	result := &interfaces.RenderResult{}
	var resultMu sync.Mutex

	// Track the main-document response status and total request count
	// off the CDP event stream
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

	start := time.Now()

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.Navigate(url),
	}
	if waitFor != "" {
		actions = append(actions, chromedp.WaitVisible(waitFor, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(r.defaultWait))
	}

	var html, finalURL string
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// A missing waitFor selector usually means the page served a
		// challenge instead of the board; salvage whatever DOM exists so
		// the caller can run anti-bot detection on it.
		if waitFor != "" && strings.Contains(err.Error(), "context deadline exceeded") {
			salvageCtx, salvageCancel := context.WithTimeout(tabCtx, 5*time.Second)
			defer salvageCancel()
			if salvageErr := chromedp.Run(salvageCtx,
				chromedp.Location(&finalURL),
				chromedp.OuterHTML("html", &html),
			); salvageErr == nil && html != "" {
				result.FinalURL = finalURL
				result.HTML = html
				result.DurationMs = time.Since(start).Milliseconds()
				r.logger.Warn().
					Str("url", url).
					Str("wait_for", waitFor).
					Msg("Render wait timed out, returning partial DOM")
				return result, nil
			}
		}
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	result.FinalURL = finalURL
	result.HTML = html
	result.DurationMs = time.Since(start).Milliseconds()

	r.logger.Debug().
		Str("url", url).
		Int("status", result.Status).
		Int("requests", result.RequestCount).
		Int64("duration_ms", result.DurationMs).
		Msg("Page rendered")

	return result, nil
}

// Close shuts down the shared browser process
func (r *ChromeRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.allocatorCancel()
	r.logger.Info().Msg("Headless renderer shut down")
}
