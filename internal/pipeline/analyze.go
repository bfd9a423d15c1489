package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/agent"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/stream"
	"github.com/ppiankov/veracity/internal/verdict"
	"github.com/ppiankov/veracity/internal/worker"
	"go.uber.org/zap"
)

const (
	statusInitializing = "Initializing analysis..."
	cancelledMessage   = "stream cancelled"
)

// RunOptions tune the evidence search of one analysis
type RunOptions struct {
	SearchOptions search.Options
	DateRange     string // "<start> to <end>", used with search.OptionDateRange
	NumResults    int    // 0 uses the configured default
}

// Stream returns the live progress of a new analysis of the claim. Nothing
// runs until the sequence is ranged, and it can be ranged only once; a second
// range yields an error and done. Every exit path ends with a done event
// unless the consumer stopped ranging, in which case the analysis is marked
// failed and the claim is released for another attempt.
func (p *Pipeline) Stream(ctx context.Context, claimID uuid.UUID, userID string, opts RunOptions) iter.Seq[stream.Event] {
	var used atomic.Bool
	return func(yield func(stream.Event) bool) {
		if used.Swap(true) {
			if yield(stream.ErrorEvent(ErrStreamConsumed)) {
				yield(stream.DoneEvent())
			}
			return
		}
		_ = p.run(ctx, claimID, userID, opts, yield)
	}
}

// Analyze runs an analysis to completion and returns it
func (p *Pipeline) Analyze(ctx context.Context, claimID uuid.UUID, userID string, opts RunOptions) (*model.Analysis, error) {
	var result *model.Analysis
	err := p.run(ctx, claimID, userID, opts, func(ev stream.Event) bool {
		if ev.Type == stream.Verdict {
			result = ev.Analysis
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ worker.ClaimAnalyzer = (*Pipeline)(nil)

// AnalyzeClaim submits a claim without context and analyzes it with the
// default search options
func (p *Pipeline) AnalyzeClaim(ctx context.Context, userID, text string, lang model.Language) (*model.Claim, *model.Analysis, error) {
	claim, err := p.SubmitClaim(ctx, userID, text, "", lang)
	if err != nil {
		return nil, nil, err
	}
	a, err := p.Analyze(ctx, claim.ID, userID, RunOptions{})
	if err != nil {
		return claim, nil, err
	}
	return claim, a, nil
}

type analysisRun struct {
	p        *Pipeline
	claim    *model.Claim
	analysis *model.Analysis
	opts     RunOptions
	log      *zap.Logger
	started  time.Time
}

// run drives one analysis, reporting progress through yield. It returns the
// error that ended the analysis, or nil when a verdict was produced or the
// consumer stopped before anything started.
func (p *Pipeline) run(ctx context.Context, claimID uuid.UUID, userID string, opts RunOptions, yield func(stream.Event) bool) error {
	if !yield(stream.StatusEvent(statusInitializing)) {
		return nil
	}
	fail := func(err error) error {
		if yield(stream.ErrorEvent(err)) {
			yield(stream.DoneEvent())
		}
		return err
	}

	claim, err := p.store.GetClaim(ctx, claimID)
	if err != nil {
		return fail(err)
	}
	if userID != "" && claim.UserID != userID {
		return fail(&model.NotFoundError{Entity: "claim", ID: claimID.String()})
	}
	opts, err = p.normalize(opts, claim.Language)
	if err != nil {
		return fail(err)
	}
	if p.provider == nil || p.search == nil {
		return fail(ErrNoProvider)
	}

	if err := p.store.BeginClaimAnalysis(ctx, claimID); err != nil {
		return fail(err)
	}

	r := &analysisRun{p: p, claim: claim, opts: opts, started: p.now()}
	r.analysis = model.NewAnalysis(claimID)
	r.analysis.Status = model.AnalysisProcessing
	r.log = p.log.With(zap.Stringer("claim_id", claimID), zap.Stringer("analysis_id", r.analysis.ID))

	// from here on every store write must happen even if ctx is cancelled
	bg := context.WithoutCancel(ctx)
	if err := p.store.CreateAnalysis(bg, r.analysis); err != nil {
		r.releaseClaim(bg)
		return fail(fmt.Errorf("create analysis: %w", err))
	}
	r.log.Info("analysis started")

	stopped := false
	emit := func(ev stream.Event) error {
		if !yield(ev) {
			stopped = true
			return agent.ErrStopped
		}
		return nil
	}

	out, err := r.driver().Run(ctx, agent.Input{
		ClaimID:   claimID.String(),
		Statement: claim.Text,
		Context:   claim.Context,
		Language:  claim.Language,
	}, emit)
	r.saveTranscript(bg, out)

	if err != nil {
		if stopped || errors.Is(err, agent.ErrStopped) {
			r.finishFailed(bg, errors.New(cancelledMessage), "cancelled")
			ctxErr := ctx.Err()
			if stopped {
				if ctxErr != nil {
					return ctxErr
				}
				return agent.ErrStopped
			}
			// the consumer is still reading; it gets the error and done
			if ctxErr == nil {
				return fail(err)
			}
			return fail(fmt.Errorf("%s: %w", cancelledMessage, ctxErr))
		}
		r.finishFailed(bg, err, "failed")
		return fail(err)
	}

	if err := r.finishCompleted(bg, out); err != nil {
		return fail(err)
	}
	if yield(stream.Event{Type: stream.Verdict, Analysis: r.analysis}) {
		yield(stream.DoneEvent())
	}
	return nil
}

// normalize validates the search options against the claim language
func (p *Pipeline) normalize(opts RunOptions, lang model.Language) (RunOptions, error) {
	if p.agent.IncludePublishDates {
		opts.SearchOptions |= search.OptionDateCreated
	}
	if opts.NumResults <= 0 {
		opts.NumResults = p.numRes
	}
	if opts.SearchOptions.Has(search.OptionDateRange) {
		if lang != model.English {
			return opts, model.Validationf("date range search is only available in english")
		}
		if _, err := search.ParseDateRange(opts.DateRange); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func (r *analysisRun) driver() *agent.Driver {
	p := r.p
	return agent.NewDriver(p.provider, r.searcher(),
		verdict.NewSynthesizer(p.provider, p.agent.VerdictRepairTries, p.metrics, r.log),
		agent.Options{
			MaxTurns:    p.agent.MaxTurns,
			CallTimeout: p.agent.CallTimeout,
			Metrics:     p.metrics,
			Log:         r.log,
			Now:         p.now,
		})
}

func (r *analysisRun) searcher() *evidenceSearcher {
	return &evidenceSearcher{
		service:    r.p.search,
		analysisID: r.analysis.ID,
		lang:       r.claim.Language,
		opts:       r.opts,
	}
}

func (r *analysisRun) saveTranscript(ctx context.Context, out *agent.Outcome) {
	if out == nil || out.Transcript == nil {
		return
	}
	if err := r.p.store.SaveTranscript(ctx, r.analysis.ID, out.Transcript.Messages()); err != nil {
		r.log.Warn("saving transcript failed", zap.Error(err))
	}
}

func (r *analysisRun) finishCompleted(ctx context.Context, out *agent.Outcome) error {
	res := out.Result
	a := r.analysis
	a.VeracityScore = model.Float(res.VeracityScore)
	a.ConfidenceScore = model.Float(res.Confidence)
	a.AnalysisText = res.Analysis
	a.OriginalText = res.Analysis
	a.LogProbs = res.LogProbs
	a.Status = model.AnalysisCompleted
	a.Error = ""

	if err := r.p.store.UpdateAnalysis(ctx, a); err != nil {
		r.releaseClaim(ctx)
		r.p.metrics.AnalysisFinished("failed", r.p.now().Sub(r.started))
		return fmt.Errorf("store verdict: %w", err)
	}
	if err := r.p.store.SetClaimStatus(ctx, r.claim.ID, model.ClaimAnalyzed); err != nil {
		r.log.Error("claim status update failed", zap.Error(err))
	}

	sources, err := r.p.store.ListSources(ctx, a.ID)
	if err != nil {
		r.log.Warn("loading sources failed", zap.Error(err))
	}
	a.Sources = sources

	elapsed := r.p.now().Sub(r.started)
	r.p.metrics.AnalysisFinished("completed", elapsed)
	r.log.Info("analysis completed",
		zap.Float64("veracity", res.VeracityScore),
		zap.Float64("confidence", res.Confidence),
		zap.Int("turns", out.Turns),
		zap.Int("searches", out.Searches),
		zap.Int("sources", len(sources)),
		zap.Bool("forced", out.Forced),
		zap.Duration("elapsed", elapsed))
	return nil
}

// finishFailed marks the analysis failed and puts the claim back to pending.
// Sources already written stay with the analysis.
func (r *analysisRun) finishFailed(ctx context.Context, cause error, outcome string) {
	a := r.analysis
	a.Status = model.AnalysisFailed
	a.VeracityScore = nil
	a.ConfidenceScore = nil
	a.Error = cause.Error()
	if err := r.p.store.UpdateAnalysis(ctx, a); err != nil {
		r.log.Error("marking analysis failed", zap.Error(err))
	}
	r.releaseClaim(ctx)

	r.p.metrics.AnalysisFinished(outcome, r.p.now().Sub(r.started))
	r.log.Warn("analysis failed", zap.String("outcome", outcome), zap.Error(cause))
}

func (r *analysisRun) releaseClaim(ctx context.Context) {
	if err := r.p.store.SetClaimStatus(ctx, r.claim.ID, model.ClaimPending); err != nil {
		r.log.Error("releasing claim failed", zap.Error(err))
	}
}
