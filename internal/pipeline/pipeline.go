package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/rewrite"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/store"
	"go.uber.org/zap"
)

// ErrStreamConsumed is reported when an analysis stream is ranged twice
var ErrStreamConsumed = errors.New("analysis stream already consumed")

// Pipeline orchestrates claim submission, analysis and the follow-up
// operations on stored analyses
type Pipeline struct {
	store    store.Store
	provider llm.Provider
	search   *search.Service
	rewriter *rewrite.Rewriter
	agent    model.AgentConfig
	numRes   int
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Store    store.Store
	Provider llm.Provider // should already carry the retry policy
	Search   *search.Service
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// New creates a pipeline
func New(cfg model.Config, deps Deps) *Pipeline {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:    deps.Store,
		provider: deps.Provider,
		search:   deps.Search,
		rewriter: rewrite.New(deps.Provider, log),
		agent:    cfg.Agent,
		numRes:   cfg.Search.NumResults,
		metrics:  deps.Metrics,
		log:      log,
		now:      time.Now,
	}
}

// SubmitClaim validates and stores a new pending claim
func (p *Pipeline) SubmitClaim(ctx context.Context, userID, text, claimContext string, lang model.Language) (*model.Claim, error) {
	claim, err := model.NewClaim(userID, text, claimContext, lang)
	if err != nil {
		return nil, err
	}
	if err := p.store.CreateClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("store claim: %w", err)
	}
	p.log.Info("claim submitted", zap.Stringer("claim_id", claim.ID), zap.String("language", string(lang)))
	return claim, nil
}

// GetClaim loads a claim
func (p *Pipeline) GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	return p.store.GetClaim(ctx, id)
}

// GetAnalysis loads an analysis, optionally with its sources and feedback
func (p *Pipeline) GetAnalysis(ctx context.Context, id uuid.UUID, includeSources, includeFeedback bool) (*model.Analysis, error) {
	a, err := p.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	if includeSources {
		if a.Sources, err = p.store.ListSources(ctx, id); err != nil {
			return nil, fmt.Errorf("load sources: %w", err)
		}
	}
	if includeFeedback {
		if a.Feedback, err = p.store.ListFeedback(ctx, id); err != nil {
			return nil, fmt.Errorf("load feedback: %w", err)
		}
	}
	return a, nil
}

// AwaitAnalysis polls until the analysis has finished (completed or failed)
// or ctx is done
func (p *Pipeline) AwaitAnalysis(ctx context.Context, id uuid.UUID, poll time.Duration) (*model.Analysis, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		a, err := p.store.GetAnalysis(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if a.Status == model.AnalysisCompleted || a.Status == model.AnalysisFailed {
			return p.GetAnalysis(ctx, id, true, false)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ClaimAnalyses lists every analysis of a claim, oldest first
func (p *Pipeline) ClaimAnalyses(ctx context.Context, claimID uuid.UUID) ([]model.Analysis, error) {
	if _, err := p.store.GetClaim(ctx, claimID); err != nil {
		return nil, err
	}
	return p.store.ListAnalysesByClaim(ctx, claimID)
}

// AverageVeracity is the mean veracity of completed analyses for claims
// created in [from, to) in lang; 0 when there are none
func (p *Pipeline) AverageVeracity(ctx context.Context, from, to time.Time, lang model.Language) (float64, error) {
	if err := lang.Validate(); err != nil {
		return 0, err
	}
	if !from.Before(to) {
		return 0, model.Validationf("empty time window %s to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return p.store.AverageVeracity(ctx, from, to, lang)
}

// Transcript returns the stored model conversation of an analysis
func (p *Pipeline) Transcript(ctx context.Context, analysisID uuid.UUID) ([]model.Message, error) {
	return p.store.LoadTranscript(ctx, analysisID)
}

// SubmitFeedback records a user's 1-5 rating of an analysis
func (p *Pipeline) SubmitFeedback(ctx context.Context, analysisID uuid.UUID, userID string, rating float64, comment string) (*model.Feedback, error) {
	if _, err := p.store.GetAnalysis(ctx, analysisID); err != nil {
		return nil, err
	}
	f := &model.Feedback{
		ID:         uuid.New(),
		AnalysisID: analysisID,
		UserID:     userID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  p.now().UTC(),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := p.store.AddFeedback(ctx, f); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	return f, nil
}

// VaryAssertiveness rewrites the explanation of a completed analysis in the
// given direction. The rewrite always starts from the originally synthesized
// text and only the presented text changes; scores are untouched.
func (p *Pipeline) VaryAssertiveness(ctx context.Context, analysisID uuid.UUID, dir rewrite.Direction) (*model.Analysis, error) {
	return p.VaryAssertivenessStream(ctx, analysisID, dir, nil)
}

// VaryAssertivenessStream is VaryAssertiveness with partial text delivered to onChunk
func (p *Pipeline) VaryAssertivenessStream(ctx context.Context, analysisID uuid.UUID, dir rewrite.Direction, onChunk func(string) error) (*model.Analysis, error) {
	if p.provider == nil {
		return nil, ErrNoProvider
	}
	a, err := p.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AnalysisCompleted {
		return nil, model.Validationf("analysis %s is %s, only completed analyses can be rewritten", analysisID, a.Status)
	}
	claim, err := p.store.GetClaim(ctx, a.ClaimID)
	if err != nil {
		return nil, err
	}

	base := a.OriginalText
	if base == "" {
		base = a.AnalysisText
	}
	text, err := p.rewriter.Rewrite(ctx, base, dir, claim.Language, onChunk)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateAnalysisText(ctx, analysisID, text); err != nil {
		return nil, fmt.Errorf("store rewritten text: %w", err)
	}

	p.log.Info("analysis text rewritten",
		zap.Stringer("analysis_id", analysisID),
		zap.String("direction", string(dir)))
	return p.GetAnalysis(ctx, analysisID, true, false)
}
