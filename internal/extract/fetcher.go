package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/ppiankov/veracity/internal/worker"
)

// fetchSleepFunc is swapped out in tests
var fetchSleepFunc = time.Sleep

// ErrDisallowed is returned when robots.txt forbids fetching a page
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Fetcher downloads HTML pages politely: robots.txt, per-host limits, bounded bodies
type Fetcher struct {
	httpClient *http.Client
	robots     *util.RobotsChecker // nil skips robots.txt
	limiter    *worker.Limiter     // nil skips rate limiting
	userAgent  string
	maxBytes   int64
	maxRetries int
}

// NewFetcher creates a fetcher sharing client, robots checker and limiter with the caller
func NewFetcher(client *http.Client, robots *util.RobotsChecker, limiter *worker.Limiter, cfg model.HTTPConfig) *Fetcher {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	return &Fetcher{
		httpClient: client,
		robots:     robots,
		limiter:    limiter,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: 2,
	}
}

// FetchResult contains the fetched HTML and where it ended up
type FetchResult struct {
	HTML         string
	FinalURL     string
	StatusCode   int
	LastModified string
}

// Fetch retrieves one page without retrying
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	var delay time.Duration
	if f.robots != nil {
		allowed, crawlDelay := f.robots.CanFetch(ctx, rawURL)
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		delay = crawlDelay
	}
	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, delay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,fr;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &model.UpstreamError{Service: "page", Op: "fetch", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.UpstreamError{Service: "page", Op: "fetch", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		HTML:         string(body),
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// FetchWithRetry retries transient failures with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(time.Duration(1<<(attempt-1)) * 500 * time.Millisecond)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !model.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", f.maxRetries+1, lastErr)
}
