package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/util"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls   atomic.Int32
	errs    []error // returned by successive calls before results
	results []Result
	lastQ   Query
	mu      sync.Mutex
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Query(_ context.Context, q Query) ([]Result, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.lastQ = q
	f.mu.Unlock()
	if n <= len(f.errs) {
		return nil, f.errs[n-1]
	}
	return f.results, nil
}

// slowBackend answers only when ctx ends
type slowBackend struct{}

func (slowBackend) Name() string { return "slow" }

func (slowBackend) Query(ctx context.Context, _ Query) ([]Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, rawURL string) (*model.Domain, bool, error) {
	name, err := model.NormalizeDomainName(rawURL)
	if err != nil {
		return nil, false, err
	}
	d := &model.Domain{ID: uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)), Name: name}
	if name == "trusted.example" {
		d.CredibilityScore = model.Float(0.9)
	}
	return d, false, nil
}

type fakeSources struct {
	mu      sync.Mutex
	byURL   map[string]*model.Source
	updates int
}

func newFakeSources() *fakeSources { return &fakeSources{byURL: map[string]*model.Source{}} }

func (f *fakeSources) CreateSource(_ context.Context, s *model.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := s.AnalysisID.String() + s.URLHash()
	if _, ok := f.byURL[key]; ok {
		return model.ErrConflict
	}
	cp := *s
	f.byURL[key] = &cp
	return nil
}

func (f *fakeSources) GetSourceByURL(_ context.Context, analysisID uuid.UUID, rawURL string) (*model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byURL[analysisID.String()+model.HashURL(rawURL)]
	if !ok {
		return nil, &model.NotFoundError{Entity: "source", ID: rawURL}
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSources) UpdateSourceCredibility(_ context.Context, id uuid.UUID, score *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	for _, s := range f.byURL {
		if s.ID == id {
			s.CredibilityScore = score
			return nil
		}
	}
	return &model.NotFoundError{Entity: "source", ID: id.String()}
}

type fixedDates string

func (d fixedDates) Published(context.Context, string, []map[string]string) string { return string(d) }

func noSleep(t *testing.T) {
	orig := searchSleepFunc
	searchSleepFunc = func(time.Duration) {}
	t.Cleanup(func() { searchSleepFunc = orig })
}

func newTestService(b Backend, store SourceStore, dates DateFinder, c cache.Cache) *Service {
	return NewService(model.DefaultConfig().Search, time.Hour, Deps{
		Backend: b,
		Domains: fakeResolver{},
		Store:   store,
		Dates:   dates,
		Cache:   c,
	})
}

var threeResults = []Result{
	{Title: "A", Link: "https://trusted.example/a", Snippet: "a"},
	{Title: "B", Link: "https://other.example/b", Snippet: "b"},
	{Title: "C", Link: "https://third.example/c", Snippet: "c"},
}

func TestSearch_PreservesOrderAndSnapshotsCredibility(t *testing.T) {
	backend := &fakeBackend{results: threeResults}
	svc := newTestService(backend, newFakeSources(), nil, nil)

	sources, err := svc.Search(context.Background(), Request{
		AnalysisID: uuid.New(), Query: "claim", NumResults: 25, Language: model.English, StartPosition: 3,
	})
	require.NoError(t, err)
	require.Len(t, sources, 3)

	for i, s := range sources {
		assert.Equal(t, threeResults[i].Link, s.URL)
		assert.Equal(t, 3+i, s.Position)
		assert.Nil(t, s.PublishedDate, "dates not requested")
	}
	require.NotNil(t, sources[0].CredibilityScore)
	assert.InDelta(t, 0.9, *sources[0].CredibilityScore, 1e-9)
	assert.Nil(t, sources[1].CredibilityScore)

	assert.Equal(t, 10, backend.lastQ.Num, "num is capped at 10")
	assert.Equal(t, "lang_en", backend.lastQ.Restrict)
}

func TestSearch_DateOptions(t *testing.T) {
	backend := &fakeBackend{results: threeResults[:1]}
	svc := newTestService(backend, newFakeSources(), fixedDates(""), nil)

	sources, err := svc.Search(context.Background(), Request{
		AnalysisID: uuid.New(), Query: "claim", Language: model.English,
		Options: OptionDateCreated | OptionDateRange, DateRange: "2024-01-01 to 2024-02-01",
	})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.NotNil(t, sources[0].PublishedDate)
	assert.Equal(t, "", *sources[0].PublishedDate, "failed lookups are empty, not nil")
	assert.Equal(t, "claim after:2024-01-01 before:2024-02-01", backend.lastQ.Text)
}

func TestSearch_InvalidDateRangeBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{results: threeResults}
	svc := newTestService(backend, newFakeSources(), nil, nil)

	_, err := svc.Search(context.Background(), Request{
		Query: "claim", Language: model.English, Options: OptionDateRange, DateRange: "last week",
	})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestSearch_UnsupportedLanguage(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(backend, newFakeSources(), nil, nil)

	_, err := svc.Search(context.Background(), Request{Query: "claim", Language: "german"})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestSearch_RetriesTransientOnce(t *testing.T) {
	noSleep(t)
	transient := &model.UpstreamError{Service: "fake", Op: "query", StatusCode: 503, Err: errors.New("unavailable")}

	backend := &fakeBackend{errs: []error{transient}, results: threeResults}
	svc := newTestService(backend, newFakeSources(), nil, nil)
	sources, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "q", Language: model.English})
	require.NoError(t, err)
	assert.Len(t, sources, 3)
	assert.Equal(t, int32(2), backend.calls.Load())

	failing := &fakeBackend{errs: []error{transient, transient, transient}}
	svc = newTestService(failing, newFakeSources(), nil, nil)
	_, err = svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "q", Language: model.English})
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestSearch_PermanentErrorNotRetried(t *testing.T) {
	noSleep(t)
	backend := &fakeBackend{errs: []error{&model.UpstreamError{Service: "fake", Op: "query", StatusCode: 403, Err: errors.New("quota")}}}
	svc := newTestService(backend, newFakeSources(), nil, nil)

	_, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "q", Language: model.English})
	assert.Error(t, err)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestSearch_DuplicateURLUpdatesExisting(t *testing.T) {
	store := newFakeSources()
	analysisID := uuid.New()
	backend := &fakeBackend{results: threeResults[:1]}
	svc := newTestService(backend, store, nil, nil)

	first, err := svc.Search(context.Background(), Request{AnalysisID: analysisID, Query: "q1", Language: model.English})
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), Request{AnalysisID: analysisID, Query: "q2", Language: model.English})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "the first row keeps its identity")
	assert.Equal(t, 1, store.updates)
	assert.Len(t, store.byURL, 1)
}

func TestSearch_DuplicateURLsInOneResponse(t *testing.T) {
	store := newFakeSources()
	dup := []Result{threeResults[0], threeResults[0], threeResults[1]}
	svc := newTestService(&fakeBackend{results: dup}, store, nil, nil)

	sources, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "q", Language: model.English})
	require.NoError(t, err)
	assert.Len(t, sources, 2)
	assert.Len(t, store.byURL, 2)
}

func TestSearch_SkipsUnresolvableResults(t *testing.T) {
	results := []Result{{Title: "bad", Link: "https:///nohost"}, threeResults[1]}
	svc := newTestService(&fakeBackend{results: results}, newFakeSources(), nil, nil)

	sources, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "q", Language: model.English})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, threeResults[1].Link, sources[0].URL)
}

func TestSearch_UsesCache(t *testing.T) {
	backend := &fakeBackend{results: threeResults}
	c := cache.NewLayeredCache(time.Minute, "", 0)
	svc := newTestService(backend, newFakeSources(), nil, c)

	for i := 0; i < 2; i++ {
		_, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "same", Language: model.French})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.calls.Load())
	assert.Equal(t, "lang_fr", backend.lastQ.Restrict)
}

func TestSearch_CacheHitCountedOnce(t *testing.T) {
	backend := &fakeBackend{results: threeResults}
	m := metrics.New()
	svc := NewService(model.DefaultConfig().Search, time.Hour, Deps{
		Backend: backend,
		Domains: fakeResolver{},
		Store:   newFakeSources(),
		Cache:   cache.NewLayeredCache(time.Minute, "", 0),
		Metrics: m,
	})

	for i := 0; i < 2; i++ {
		_, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "same", Language: model.English})
		require.NoError(t, err)
	}

	expected := `
# HELP veracity_searches_total Evidence searches by outcome.
# TYPE veracity_searches_total counter
veracity_searches_total{outcome="cached"} 1
veracity_searches_total{outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "veracity_searches_total"))
}

func TestSearch_TimeoutBoundsBackendCall(t *testing.T) {
	cfg := model.DefaultConfig().Search
	cfg.Timeout = 30 * time.Millisecond
	svc := NewService(cfg, 0, Deps{Backend: slowBackend{}, Domains: fakeResolver{}, Store: newFakeSources()})

	start := time.Now()
	_, err := svc.Search(context.Background(), Request{AnalysisID: uuid.New(), Query: "claim", Language: model.English})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "search timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGoogleBackend_Query(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customsearch/v1" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		got = map[string]string{"q": q.Get("q"), "cx": q.Get("cx"), "num": q.Get("num"), "lr": q.Get("lr"), "key": q.Get("key"), "fields": q.Get("fields")}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"title": "T", "link": "https://example.com/x", "snippet": "S",
					"pagemap": map[string]any{"metatags": []map[string]any{{"og:published_time": "2023-03-03", "viewport": 1}}},
				},
				{"title": "no link"},
			},
		})
	}))
	defer server.Close()

	backend, err := NewGoogleBackend(context.Background(), googleConfig(server.URL), nil)
	require.NoError(t, err)

	results, err := backend.Query(context.Background(), Query{Text: "claim", Restrict: "lang_en", Num: 3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/x", results[0].Link)
	require.Len(t, results[0].Metatags, 1)
	assert.Equal(t, "2023-03-03", results[0].Metatags[0]["og:published_time"])
	assert.Equal(t, "1", results[0].Metatags[0]["viewport"])

	assert.Equal(t, "claim", got["q"])
	assert.Equal(t, "engine", got["cx"])
	assert.Equal(t, "3", got["num"])
	assert.Equal(t, "lang_en", got["lr"])
	assert.Equal(t, "k", got["key"])
	assert.Equal(t, "items(title,link,snippet,pagemap)", got["fields"])
}

func TestGoogleBackend_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"rate limited"}}`))
	}))
	defer server.Close()

	backend, err := NewGoogleBackend(context.Background(), googleConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = backend.Query(context.Background(), Query{Text: "claim"})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestGoogleBackend_SharedClient(t *testing.T) {
	var key atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key.Store(r.URL.Query().Get("key"))
		if r.URL.Query().Get("q") == "slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"title":"T","link":"https://example.com/x"}]}`))
	}))
	defer server.Close()

	httpCfg := model.DefaultConfig().HTTP
	httpCfg.Timeout = 100 * time.Millisecond
	backend, err := NewGoogleBackend(context.Background(), googleConfig(server.URL), util.NewHTTPClient(httpCfg))
	require.NoError(t, err)

	results, err := backend.Query(context.Background(), Query{Text: "claim"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "k", key.Load(), "the API key is still sent through a custom client")

	_, err = backend.Query(context.Background(), Query{Text: "slow"})
	assert.Error(t, err, "the client timeout bounds the request")
}

func TestNewGoogleBackend_RequiresCredentials(t *testing.T) {
	_, err := NewGoogleBackend(context.Background(), model.SearchConfig{EngineID: "engine"}, nil)
	assert.Error(t, err)
}

func googleConfig(serverURL string) model.SearchConfig {
	return model.SearchConfig{APIKey: "k", EngineID: "engine", Endpoint: serverURL + "/"}
}
