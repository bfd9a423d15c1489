// Package search finds web evidence for a claim and records it as sources.
package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// searchSleepFunc is swapped out in tests
var searchSleepFunc = time.Sleep

// DomainResolver maps a URL to its domain record
type DomainResolver interface {
	Resolve(ctx context.Context, rawURL string) (*model.Domain, bool, error)
}

// SourceStore is the persistence the service needs
type SourceStore interface {
	CreateSource(ctx context.Context, s *model.Source) error
	GetSourceByURL(ctx context.Context, analysisID uuid.UUID, rawURL string) (*model.Source, error)
	UpdateSourceCredibility(ctx context.Context, id uuid.UUID, score *float64) error
}

// DateFinder looks up publish dates; it never fails
type DateFinder interface {
	Published(ctx context.Context, rawURL string, metatags []map[string]string) string
}

// Request describes one search on behalf of an analysis
type Request struct {
	AnalysisID    uuid.UUID
	Query         string
	NumResults    int
	Language      model.Language
	Options       Options
	DateRange     string // "<start> to <end>", used with OptionDateRange
	StartPosition int    // rank of the first result within the analysis
}

// Service searches, resolves domains, and persists sources
type Service struct {
	backend  Backend
	domains  DomainResolver
	store    SourceStore
	dates    DateFinder
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration // per backend request
	workers  int
	backoff  time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// Deps groups the collaborators of a Service
type Deps struct {
	Backend Backend
	Domains DomainResolver
	Store   SourceStore
	Dates   DateFinder      // nil disables publish dates
	Cache   cache.Cache     // nil disables caching
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// NewService creates a search service
func NewService(cfg model.SearchConfig, cacheTTL time.Duration, deps Deps) *Service {
	s := &Service{
		backend:  deps.Backend,
		domains:  deps.Domains,
		store:    deps.Store,
		dates:    deps.Dates,
		cache:    deps.Cache,
		cacheTTL: cacheTTL,
		timeout:  cfg.Timeout,
		workers:  cfg.Workers,
		backoff:  cfg.RetryBackoff,
		metrics:  deps.Metrics,
		log:      deps.Log,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Search validates the request, queries the backend (one retry on transient
// failure) and stores each result as a source of the analysis. Results that
// cannot be processed are logged and skipped; order follows backend rank.
func (s *Service) Search(ctx context.Context, req Request) ([]model.Source, error) {
	if err := req.Language.Validate(); err != nil {
		return nil, err
	}
	var dr *DateRange
	if req.Options.Has(OptionDateRange) && req.DateRange != "" {
		parsed, err := ParseDateRange(req.DateRange)
		if err != nil {
			return nil, err
		}
		dr = &parsed
	}

	q := Query{
		Text:     BuildQuery(req.Query, req.Language, req.Options, dr),
		Restrict: LanguageRestrict(req.Language),
		Num:      req.NumResults,
	}
	if q.Num <= 0 || q.Num > maxResults {
		q.Num = min(max(q.Num, 5), maxResults)
	}
	if q.Text == "" {
		return nil, model.Validationf("empty search query")
	}

	results, cached, err := s.query(ctx, q)
	if err != nil {
		s.metrics.SearchDone("error")
		return nil, err
	}
	if cached {
		s.metrics.SearchDone("cached")
	}
	if len(results) == 0 {
		s.metrics.SearchDone("empty")
		s.log.Info("no search results", zap.String("query", q.Text))
		return nil, nil
	}

	sources := make([]*model.Source, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, r := range results {
		g.Go(func() error {
			src, err := s.record(gctx, req, r, req.StartPosition+i)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warn("skipping search result",
					zap.String("url", r.Link),
					zap.Stringer("analysis_id", req.AnalysisID),
					zap.Error(err))
				return nil
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.Source, 0, len(sources))
	seen := make(map[uuid.UUID]bool, len(sources))
	for _, src := range sources {
		if src == nil || seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		out = append(out, *src)
	}
	if !cached {
		s.metrics.SearchDone("ok")
	}
	return out, nil
}

// query serves q from the cache or the backend; cached reports a cache hit
func (s *Service) query(ctx context.Context, q Query) (results []Result, cached bool, err error) {
	key := cache.Key("search", s.backend.Name(), q.Text, q.Restrict, strconv.Itoa(q.Num))
	if cache.GetJSON(s.cache, key, &results) {
		return results, true, nil
	}

	results, err = s.call(ctx, q)
	if err != nil && model.IsTransient(err) && ctx.Err() == nil {
		s.log.Warn("search failed, retrying once", zap.String("query", q.Text), zap.Error(err))
		searchSleepFunc(s.backoff)
		results, err = s.call(ctx, q)
	}
	if err != nil {
		return nil, false, err
	}

	if len(results) > 0 {
		if err := cache.SetJSON(s.cache, key, results, s.cacheTTL); err != nil {
			s.log.Debug("cache write failed", zap.Error(err))
		}
	}
	return results, false, nil
}

// call runs one backend request bounded by the search timeout
func (s *Service) call(ctx context.Context, q Query) ([]Result, error) {
	if s.timeout <= 0 {
		return s.backend.Query(ctx, q)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	results, err := s.backend.Query(ctx, q)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("search timed out after %s: %w", s.timeout, err)
	}
	return results, err
}

// record resolves the domain and stores one result. A duplicate URL within the
// analysis keeps the first row and refreshes its credibility snapshot.
func (s *Service) record(ctx context.Context, req Request, r Result, position int) (*model.Source, error) {
	domain, created, err := s.domains.Resolve(ctx, r.Link)
	if err != nil {
		return nil, fmt.Errorf("resolve domain: %w", err)
	}
	if created {
		s.log.Info("created domain record", zap.String("domain", domain.Name))
	}

	now := time.Now().UTC()
	src := &model.Source{
		ID:               uuid.New(),
		AnalysisID:       req.AnalysisID,
		URL:              r.Link,
		Title:            r.Title,
		Snippet:          r.Snippet,
		DomainID:         domain.ID,
		Domain:           domain,
		CredibilityScore: domain.CredibilityScore,
		Position:         position,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Options.Has(OptionDateCreated) && s.dates != nil {
		date := s.dates.Published(ctx, r.Link, r.Metatags)
		src.PublishedDate = &date
	}

	err = s.store.CreateSource(ctx, src)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, model.ErrConflict) {
		return nil, fmt.Errorf("create source: %w", err)
	}

	s.log.Debug("source already recorded, updating credibility", zap.String("url", r.Link))
	existing, err := s.store.GetSourceByURL(ctx, req.AnalysisID, r.Link)
	if err != nil {
		return nil, fmt.Errorf("load existing source: %w", err)
	}
	if err := s.store.UpdateSourceCredibility(ctx, existing.ID, domain.CredibilityScore); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	existing.CredibilityScore = domain.CredibilityScore
	existing.Domain = domain
	return existing, nil
}
