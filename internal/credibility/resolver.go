// Package credibility resolves the domain record and credibility of a source URL.
package credibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/ppiankov/veracity/internal/model"
	"go.uber.org/zap"
)

// DomainStore is the persistence the resolver needs
type DomainStore interface {
	CreateDomain(ctx context.Context, d *model.Domain) error
	GetDomainByName(ctx context.Context, name string) (*model.Domain, error)
	UpdateDomain(ctx context.Context, d *model.Domain) error
}

// Resolver maps URLs to domain records, creating unknown domains on first sight
type Resolver struct {
	store      DomainStore
	cache      *gocache.Cache
	classifier *Classifier
	cfg        model.CredibilityConfig
	log        *zap.Logger
}

// NewResolver creates a resolver with a process-scoped domain cache
func NewResolver(store DomainStore, cfg model.CredibilityConfig, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		store:      store,
		cache:      gocache.New(ttl, 2*ttl),
		classifier: NewClassifier(cfg),
		cfg:        cfg,
		log:        log,
	}
}

// Resolve returns the domain record for rawURL and whether it was created by this call
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*model.Domain, bool, error) {
	name, err := model.NormalizeDomainName(rawURL)
	if err != nil {
		return nil, false, err
	}

	if v, ok := r.cache.Get(name); ok {
		d := *v.(*model.Domain)
		return &d, false, nil
	}

	d, err := r.store.GetDomainByName(ctx, name)
	switch {
	case err == nil:
		r.remember(d)
		return d, false, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, false, fmt.Errorf("lookup domain %s: %w", name, err)
	}

	d = r.seed(name)
	if err := r.store.CreateDomain(ctx, d); err != nil {
		if !errors.Is(err, model.ErrConflict) {
			return nil, false, fmt.Errorf("create domain %s: %w", name, err)
		}
		// another analysis created it first
		existing, err := r.store.GetDomainByName(ctx, name)
		if err != nil {
			return nil, false, fmt.Errorf("reload domain %s: %w", name, err)
		}
		r.remember(existing)
		return existing, false, nil
	}

	r.log.Debug("domain created",
		zap.String("domain", name),
		zap.Stringer("tier", r.classifier.Classify(name)))
	r.remember(d)
	return d, true, nil
}

// Moderate sets the credibility of a domain and drops it from the cache.
// A nil score marks the domain as unknown again.
func (r *Resolver) Moderate(ctx context.Context, rawName string, score *float64, reliable bool, description string) (*model.Domain, error) {
	if score != nil && (*score < 0 || *score > 1) {
		return nil, model.Validationf("credibility %v outside [0,1]", *score)
	}
	name, err := model.NormalizeDomainName(rawName)
	if err != nil {
		return nil, err
	}

	d, err := r.store.GetDomainByName(ctx, name)
	if errors.Is(err, model.ErrNotFound) {
		d = r.seed(name)
		if err := r.store.CreateDomain(ctx, d); err != nil && !errors.Is(err, model.ErrConflict) {
			return nil, fmt.Errorf("create domain %s: %w", name, err)
		}
	} else if err != nil {
		return nil, err
	}

	d.CredibilityScore = score
	d.IsReliable = reliable
	d.Description = strings.TrimSpace(description)
	if err := r.store.UpdateDomain(ctx, d); err != nil {
		return nil, fmt.Errorf("update domain %s: %w", name, err)
	}
	r.Invalidate(name)

	r.log.Info("domain moderated", zap.String("domain", name), zap.Bool("reliable", reliable))
	return d, nil
}

// Invalidate drops a cached domain so the next Resolve reads the store
func (r *Resolver) Invalidate(name string) {
	r.cache.Delete(name)
}

// Lookup returns the stored domain without creating it
func (r *Resolver) Lookup(ctx context.Context, rawName string) (*model.Domain, error) {
	name, err := model.NormalizeDomainName(rawName)
	if err != nil {
		return nil, err
	}
	return r.store.GetDomainByName(ctx, name)
}

func (r *Resolver) seed(name string) *model.Domain {
	now := time.Now().UTC()
	d := &model.Domain{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch r.classifier.Classify(name) {
	case TierPrimary:
		d.CredibilityScore = model.Float(r.cfg.PrimaryScore)
		d.IsReliable = true
	case TierSecondary:
		d.CredibilityScore = model.Float(r.cfg.SecondaryScore)
		d.IsReliable = true
	}
	return d
}

func (r *Resolver) remember(d *model.Domain) {
	cp := *d
	r.cache.SetDefault(d.Name, &cp)
}
