package credibility

import (
	"context"
	"sync"
	"testing"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDomains struct {
	mu      sync.Mutex
	byName  map[string]*model.Domain
	gets    int
	creates int
	// racer, when set, inserts a competing row right before the next create
	racer *model.Domain
}

func newFakeDomains() *fakeDomains {
	return &fakeDomains{byName: map[string]*model.Domain{}}
}

func (f *fakeDomains) CreateDomain(_ context.Context, d *model.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.racer != nil {
		f.byName[f.racer.Name] = f.racer
		f.racer = nil
	}
	if _, ok := f.byName[d.Name]; ok {
		return model.ErrConflict
	}
	cp := *d
	f.byName[d.Name] = &cp
	return nil
}

func (f *fakeDomains) GetDomainByName(_ context.Context, name string) (*model.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	d, ok := f.byName[name]
	if !ok {
		return nil, &model.NotFoundError{Entity: "domain", ID: name}
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDomains) UpdateDomain(_ context.Context, d *model.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[d.Name]; !ok {
		return &model.NotFoundError{Entity: "domain", ID: d.Name}
	}
	cp := *d
	f.byName[d.Name] = &cp
	return nil
}

func testConfig() model.CredibilityConfig {
	cfg := model.DefaultConfig().Credibility
	return cfg
}

func TestResolveCreatesUnknownDomain(t *testing.T) {
	store := newFakeDomains()
	r := NewResolver(store, testConfig(), nil)

	d, created, err := r.Resolve(context.Background(), "https://www.someblog.example/post/1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "someblog.example", d.Name)
	assert.Nil(t, d.CredibilityScore, "unknown domains carry no score")
	assert.False(t, d.IsReliable)

	again, created, err := r.Resolve(context.Background(), "https://someblog.example/other")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, d.ID, again.ID)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.gets, "second resolve should be served from cache")
}

func TestResolveDefaultConfigLeavesDomainsUnknown(t *testing.T) {
	r := NewResolver(newFakeDomains(), testConfig(), nil)

	for _, u := range []string{"https://www.nasa.gov/apollo-11", "https://en.wikipedia.org/wiki/Apollo_11"} {
		d, created, err := r.Resolve(context.Background(), u)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Nil(t, d.CredibilityScore, u)
		assert.False(t, d.IsReliable, u)
	}
}

func TestResolveSeedsConfiguredDomains(t *testing.T) {
	cfg := testConfig()
	cfg.PrimaryDomains = []string{"gov"}
	cfg.SecondaryDomains = []string{"wikipedia.org"}
	r := NewResolver(newFakeDomains(), cfg, nil)

	d, _, err := r.Resolve(context.Background(), "https://www.cdc.gov/flu")
	require.NoError(t, err)
	require.NotNil(t, d.CredibilityScore)
	assert.InDelta(t, 0.9, *d.CredibilityScore, 1e-9)
	assert.True(t, d.IsReliable)

	d, _, err = r.Resolve(context.Background(), "https://en.wikipedia.org/wiki/Flu")
	require.NoError(t, err)
	require.NotNil(t, d.CredibilityScore)
	assert.InDelta(t, 0.7, *d.CredibilityScore, 1e-9)
}

func TestResolveRecoversFromCreateConflict(t *testing.T) {
	store := newFakeDomains()
	winner := &model.Domain{Name: "race.example", CredibilityScore: model.Float(0.3)}
	store.racer = winner
	r := NewResolver(store, testConfig(), nil)

	d, created, err := r.Resolve(context.Background(), "https://race.example/a")
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, d.CredibilityScore)
	assert.InDelta(t, 0.3, *d.CredibilityScore, 1e-9)
}

func TestResolveRejectsInvalidURL(t *testing.T) {
	r := NewResolver(newFakeDomains(), testConfig(), nil)
	_, _, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestModerateInvalidatesCache(t *testing.T) {
	store := newFakeDomains()
	r := NewResolver(store, testConfig(), nil)
	ctx := context.Background()

	_, _, err := r.Resolve(ctx, "https://someblog.example/a")
	require.NoError(t, err)

	_, err = r.Moderate(ctx, "someblog.example", model.Float(0.2), false, "satire")
	require.NoError(t, err)

	d, _, err := r.Resolve(ctx, "https://someblog.example/b")
	require.NoError(t, err)
	require.NotNil(t, d.CredibilityScore)
	assert.InDelta(t, 0.2, *d.CredibilityScore, 1e-9)
	assert.Equal(t, "satire", d.Description)

	_, err = r.Moderate(ctx, "someblog.example", model.Float(2), false, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
