package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/credibility"
	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/store"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/ppiankov/veracity/internal/worker"
	"go.uber.org/zap"
)

// ErrNoProvider is returned by operations that need a model when none is configured
var ErrNoProvider = errors.New("no LLM provider configured")

// Runtime is a wired pipeline together with the resources it owns
type Runtime struct {
	*Pipeline
	Store   *store.SQLite
	Domains *credibility.Resolver
	Metrics *metrics.Metrics
}

// Close releases the database
func (r *Runtime) Close() error {
	return r.Store.Close()
}

// OpenStore wires the store and the domain resolver only. Reading analyses,
// moderation and statistics work; analyses and rewrites return ErrNoProvider.
func OpenStore(ctx context.Context, cfg model.Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	return &Runtime{
		Pipeline: New(cfg, Deps{Store: db, Metrics: m, Log: log}),
		Store:    db,
		Domains:  credibility.NewResolver(db, cfg.Credibility, log.Named("credibility")),
		Metrics:  m,
	}, nil
}

// OpenModel wires the store and the model provider but no search backend.
// Rewrites work; analyses return ErrNoProvider.
func OpenModel(ctx context.Context, cfg model.Config, log *zap.Logger) (*Runtime, error) {
	rt, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg, rt.log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Pipeline = New(cfg, Deps{
		Store:    rt.Store,
		Provider: provider,
		Metrics:  rt.Metrics,
		Log:      rt.log,
	})
	return rt, nil
}

// Open wires the full analysis stack: model provider with retry, search
// backend with cache, publish-date extraction and credibility resolution.
func Open(ctx context.Context, cfg model.Config, log *zap.Logger) (*Runtime, error) {
	rt, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log = rt.log

	provider, err := newProvider(cfg, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	searchHTTP := cfg.HTTP
	searchHTTP.Timeout = cfg.Search.Timeout
	backend, err := search.NewGoogleBackend(ctx, cfg.Search, util.NewHTTPClient(searchHTTP))
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("search backend: %w", err)
	}

	var c cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		c = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.SearchTTL)
	}

	service := search.NewService(cfg.Search, cfg.Cache.SearchTTL, search.Deps{
		Backend: backend,
		Domains: rt.Domains,
		Store:   rt.Store,
		Dates:   newDateFinder(cfg, log.Named("dates")),
		Cache:   c,
		Metrics: rt.Metrics,
		Log:     log.Named("search"),
	})

	rt.Pipeline = New(cfg, Deps{
		Store:    rt.Store,
		Provider: provider,
		Search:   service,
		Metrics:  rt.Metrics,
		Log:      log,
	})
	return rt, nil
}

// ProviderReachable builds the configured model provider and reports whether
// it answers. An error means the provider could not be built at all.
func ProviderReachable(ctx context.Context, cfg model.Config, log *zap.Logger) (string, bool, error) {
	if log == nil {
		log = zap.NewNop()
	}
	provider, err := newProvider(cfg, log)
	if err != nil {
		return "", false, err
	}
	return provider.Name(), provider.IsAvailable(ctx), nil
}

// newProvider builds the configured model provider with one retry on
// transient failures. The API key falls back to the provider's usual variable.
func newProvider(cfg model.Config, log *zap.Logger) (llm.Provider, error) {
	llmCfg := llm.ConfigFromModel(cfg.LLM)
	if llmCfg.APIKey == "" {
		llmCfg.APIKey = llm.APIKeyFromEnv(llmCfg.Provider)
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	return llm.WithRetry(provider, cfg.Agent.RetryBackoff, log.Named("llm")), nil
}

// newDateFinder builds the page fetcher used as the publish-date fallback
func newDateFinder(cfg model.Config, log *zap.Logger) *extract.DateExtractor {
	client := util.NewHTTPClient(cfg.HTTP)
	var robots *util.RobotsChecker
	if cfg.HTTP.RespectRobots {
		robots = util.NewRobotsChecker(client, cfg.HTTP.UserAgent, 24*time.Hour)
	}
	limiter := worker.LimiterFromConfig(cfg.RateLimiting)
	return extract.NewDateExtractor(extract.NewFetcher(client, robots, limiter, cfg.HTTP), log)
}
