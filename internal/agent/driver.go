// Package agent drives the reason/search loop of a claim analysis.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/metrics"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/stream"
	"github.com/ppiankov/veracity/internal/verdict"
	"go.uber.org/zap"
)

// State of the reasoning loop
type State int

const (
	StateInit State = iota
	StateReasoning
	StateAwaitingSearch
	StateReady
	StateSynthesizing
	StateDone
	StateFailed
)

func (s State) String() string {
	return [...]string{"init", "reasoning", "awaiting_search", "ready", "synthesizing", "done", "failed"}[s]
}

var (
	// ErrNoEvidence means the turn limit was reached with nothing to synthesize from
	ErrNoEvidence = errors.New("turn limit reached without evidence or reasoning")
	// ErrStopped means the event consumer went away
	ErrStopped = errors.New("event consumer stopped")
)

// Evidence is the outcome of one search directive
type Evidence struct {
	Sources []model.Source
	Block   string // formatted evidence handed back to the model
}

// Searcher runs one search on behalf of the loop
type Searcher interface {
	Search(ctx context.Context, query string) (Evidence, error)
}

// Synthesizer produces the final verdict from the transcript
type Synthesizer interface {
	Synthesize(ctx context.Context, transcript *model.Transcript, lang model.Language) (*verdict.Result, error)
}

// Emitter receives progress events; an error stops the loop
type Emitter func(stream.Event) error

// Input is one claim to analyze
type Input struct {
	ClaimID   string
	Statement string
	Context   string
	Language  model.Language
}

// Outcome is what a run produced, including partial results on failure
type Outcome struct {
	State      State
	Result     *verdict.Result
	Transcript *model.Transcript
	Sources    []model.Source
	Turns      int
	Searches   int
	Forced     bool // synthesis was forced by the turn limit
}

// Driver runs the loop
type Driver struct {
	provider    llm.Provider
	searcher    Searcher
	synthesizer Synthesizer
	maxTurns    int
	callTimeout time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// Options configures a Driver
type Options struct {
	MaxTurns    int
	CallTimeout time.Duration // bound on each model or search call; 0 means none
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	Now         func() time.Time
}

// NewDriver creates a driver
func NewDriver(provider llm.Provider, searcher Searcher, synthesizer Synthesizer, opts Options) *Driver {
	d := &Driver{
		provider:    provider,
		searcher:    searcher,
		synthesizer: synthesizer,
		maxTurns:    opts.MaxTurns,
		callTimeout: opts.CallTimeout,
		metrics:     opts.Metrics,
		log:         opts.Log,
		now:         opts.Now,
	}
	if d.maxTurns <= 0 {
		d.maxTurns = 8
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Run drives the model until it signals readiness or the turn limit is hit,
// then synthesizes the verdict. At most one search runs per turn and none
// after the sentinel. The returned Outcome is never nil; on error it holds
// whatever was gathered.
//
// Model and search calls are detached from ctx cancellation and bounded by
// the call timeout instead, so a call in flight when ctx is cancelled still
// completes. The loop stops with ErrStopped at the next turn boundary.
func (d *Driver) Run(ctx context.Context, in Input, emit Emitter) (*Outcome, error) {
	if emit == nil {
		emit = func(stream.Event) error { return nil }
	}
	if err := in.Language.Validate(); err != nil {
		return &Outcome{State: StateFailed}, err
	}

	log := d.log.With(zap.String("claim_id", in.ClaimID), zap.String("language", string(in.Language)))
	transcript := model.NewTranscript(model.Message{
		Role:    model.RoleSystem,
		Content: SystemPrompt(in.Language, in.Statement, in.Context, d.now()),
	})
	out := &Outcome{State: StateInit, Transcript: transcript}

	fail := func(err error) (*Outcome, error) {
		out.State = StateFailed
		return out, err
	}

	hadReasoning := false
	out.State = StateReasoning
	for out.Turns < d.maxTurns {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrStopped, err))
		}
		out.Turns++
		turnLog := log.With(zap.Int("turn", out.Turns))

		callCtx, cancel := d.callContext(ctx)
		resp, err := d.provider.Complete(callCtx, llm.Request{Messages: transcript.Messages()})
		cancel()
		if err != nil {
			turnLog.Error("model call failed", zap.Error(err))
			return fail(fmt.Errorf("turn %d: %w", out.Turns, err))
		}
		d.metrics.Turn()
		if err := transcript.Append(model.RoleAssistant, resp.Content); err != nil {
			return fail(err)
		}

		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrStopped, err))
		}

		turn := ParseTurn(resp.Content, in.Language)
		turnLog.Debug("model turn", zap.Stringer("kind", turn.Kind), zap.String("query", turn.Query))

		if turn.Kind == TurnReady {
			out.State = StateReady
			break
		}

		if turn.Reasoning != "" {
			hadReasoning = true
			if err := emit(stream.Event{Type: stream.Reasoning, Content: turn.Reasoning, Turn: out.Turns}); err != nil {
				return fail(ErrStopped)
			}
		}

		if turn.Kind == TurnReason {
			if err := transcript.Append(model.RoleUser, NudgeMessage(in.Language)); err != nil {
				return fail(err)
			}
			continue
		}

		if turn.Trailing != "" {
			turnLog.Debug("ignoring text after search directive", zap.String("trailing", turn.Trailing))
		}
		if err := emit(stream.Event{Type: stream.Search, Query: turn.Query, Turn: out.Turns}); err != nil {
			return fail(ErrStopped)
		}

		out.State = StateAwaitingSearch
		out.Searches++
		block := d.search(ctx, turnLog, turn.Query, out)
		if err := transcript.Append(model.RoleUser, ResultsMessage(in.Language, turn.Query, block)); err != nil {
			return fail(err)
		}
		out.State = StateReasoning
	}

	if out.State != StateReady {
		if len(out.Sources) == 0 && !hadReasoning {
			log.Warn("turn limit reached with nothing to synthesize", zap.Int("max_turns", d.maxTurns))
			return fail(ErrNoEvidence)
		}
		log.Info("turn limit reached, forcing synthesis",
			zap.Int("max_turns", d.maxTurns),
			zap.Int("sources", len(out.Sources)))
		out.Forced = true
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStopped, err))
	}
	out.State = StateSynthesizing
	if err := emit(stream.StatusEvent("Synthesizing verdict...")); err != nil {
		return fail(ErrStopped)
	}
	synthCtx, cancel := d.callContext(ctx)
	defer cancel()
	res, err := d.synthesizer.Synthesize(synthCtx, transcript, in.Language)
	if err != nil {
		log.Error("verdict synthesis failed", zap.Error(err))
		return fail(err)
	}

	transcript.Freeze()
	out.Result = res
	out.State = StateDone
	return out, nil
}

// search runs one directive; failures degrade to a note so the loop keeps going
func (d *Driver) search(ctx context.Context, log *zap.Logger, query string, out *Outcome) string {
	callCtx, cancel := d.callContext(ctx)
	defer cancel()
	ev, err := d.searcher.Search(callCtx, query)
	if err != nil {
		log.Warn("search failed, continuing without sources", zap.String("query", query), zap.Error(err))
		return NoSourcesNote
	}
	out.Sources = append(out.Sources, ev.Sources...)
	if ev.Block == "" {
		return NoSourcesNote
	}
	return ev.Block
}

func (d *Driver) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d.callTimeout > 0 {
		return context.WithTimeout(detached, d.callTimeout)
	}
	return context.WithCancel(detached)
}
