package llm

import (
	"context"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"go.uber.org/zap"
)

// retrySleepFunc is swapped out in tests
var retrySleepFunc = func(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Retrying wraps a provider so each call is retried once on a transient
// upstream failure (timeout, 429, 5xx). Permanent errors return immediately.
type Retrying struct {
	Provider
	backoff time.Duration
	log     *zap.Logger
}

// WithRetry returns p wrapped with the single-retry policy
func WithRetry(p Provider, backoff time.Duration, log *zap.Logger) *Retrying {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{Provider: p, backoff: backoff, log: log}
}

// Complete calls the wrapped provider, retrying once
func (r *Retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := r.Provider.Complete(ctx, req)
	if !r.shouldRetry(ctx, err) {
		return resp, err
	}
	return r.Provider.Complete(ctx, req)
}

// Stream streams through the wrapped provider when it supports streaming,
// otherwise it completes and delivers the text as one chunk. A stream is only
// retried when no chunk was delivered yet.
func (r *Retrying) Stream(ctx context.Context, req Request, onChunk func(string) error) (*Response, error) {
	streamer, ok := r.Provider.(Streamer)
	if !ok {
		resp, err := r.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := onChunk(resp.Content); err != nil {
			return nil, err
		}
		return resp, nil
	}

	delivered := false
	track := func(s string) error {
		delivered = true
		return onChunk(s)
	}
	resp, err := streamer.Stream(ctx, req, track)
	if delivered || !r.shouldRetry(ctx, err) {
		return resp, err
	}
	return streamer.Stream(ctx, req, track)
}

func (r *Retrying) shouldRetry(ctx context.Context, err error) bool {
	if err == nil || !model.IsTransient(err) || ctx.Err() != nil {
		return false
	}
	r.log.Warn("model call failed, retrying once",
		zap.String("provider", r.Provider.Name()),
		zap.Duration("backoff", r.backoff),
		zap.Error(err))
	retrySleepFunc(ctx, r.backoff)
	return ctx.Err() == nil
}

var _ Streamer = (*Retrying)(nil)
