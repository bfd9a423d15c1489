package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/llm/llmtest"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/stream"
	"github.com/ppiankov/veracity/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodVerdict = `{"veracity_score": 92, "analysis": "Launched on July 16, 1969."}`

type fakeSearcher struct {
	queries []string
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, query string) (Evidence, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return Evidence{}, f.err
	}
	return Evidence{
		Sources: []model.Source{{URL: "https://nasa.gov/" + strings.ReplaceAll(query, " ", "-"), Position: len(f.queries)}},
		Block:   "Source 1: nasa.gov result for " + query,
	}, nil
}

type recorder struct {
	events []stream.Event
	stopAt int // stop after this many events when > 0
}

func (r *recorder) emit(ev stream.Event) error {
	r.events = append(r.events, ev)
	if r.stopAt > 0 && len(r.events) >= r.stopAt {
		return errors.New("consumer gone")
	}
	return nil
}

func (r *recorder) types() []stream.Type {
	out := make([]stream.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newDriver(p *llmtest.Scripted, s Searcher, maxTurns int) *Driver {
	return NewDriver(p, s, verdict.NewSynthesizer(p, 1, nil, nil), Options{
		MaxTurns: maxTurns,
		Now:      func() time.Time { return time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC) },
	})
}

var apollo = Input{Statement: "Apollo 11 launched in July 1969.", Language: model.English}

func TestRun_SearchThenReady(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("REASON: need the launch date\nSEARCH: apollo 11 launch date"),
		llmtest.Text("READY"),
		llmtest.Reply{Content: goodVerdict, LogProbs: []float64{-0.1, -0.1}},
	)
	s := &fakeSearcher{}
	rec := &recorder{}

	out, err := newDriver(p, s, 8).Run(context.Background(), apollo, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.Turns)
	assert.Equal(t, 1, out.Searches)
	assert.False(t, out.Forced)
	assert.Equal(t, []string{"apollo 11 launch date"}, s.queries)
	require.Len(t, out.Sources, 1)

	require.NotNil(t, out.Result)
	assert.Equal(t, 92, out.Result.Score)
	assert.InDelta(t, 0.92, out.Result.VeracityScore, 1e-9)
	assert.InDelta(t, 0.904837, out.Result.Confidence, 1e-5)
	assert.True(t, out.Transcript.Frozen())

	assert.Equal(t, []stream.Type{stream.Reasoning, stream.Search, stream.Status}, rec.types())
	assert.Equal(t, "need the launch date", rec.events[0].Content)
	assert.Equal(t, "apollo 11 launch date", rec.events[1].Query)
	assert.Equal(t, 1, rec.events[1].Turn)

	reqs := p.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, model.RoleSystem, reqs[0].Messages[0].Role)
	assert.Contains(t, reqs[0].Messages[0].Content, "Today is July 20, 2024.")
	second := reqs[1].Messages
	assert.Equal(t, model.RoleUser, second[len(second)-1].Role)
	assert.Contains(t, second[len(second)-1].Content, "Source 1: nasa.gov result for apollo 11 launch date")
	assert.True(t, reqs[2].LogProbs)
}

func TestRun_NoSearchAfterReady(t *testing.T) {
	p := llmtest.New(llmtest.Text("READY"), llmtest.Text(goodVerdict))
	s := &fakeSearcher{}

	out, err := newDriver(p, s, 8).Run(context.Background(), apollo, nil)
	require.NoError(t, err)
	assert.Empty(t, s.queries)
	assert.Equal(t, 1, out.Turns)
	assert.Equal(t, 0, out.Searches)
}

func TestRun_OneSearchPerTurn(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("REASON: two facts\nSEARCH: first\nSEARCH: second"),
		llmtest.Text("PRÊT"),
		llmtest.Text(goodVerdict),
	)
	s := &fakeSearcher{}

	_, err := newDriver(p, s, 8).Run(context.Background(), Input{Statement: "x", Language: model.French}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, s.queries)
}

func TestRun_FailedSearchDegrades(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("REASON: look\nSEARCH: obscure thing"),
		llmtest.Text("READY"),
		llmtest.Text(goodVerdict),
	)
	s := &fakeSearcher{err: &model.UpstreamError{Service: "google-search", Op: "search", StatusCode: 503, Err: errors.New("down")}}

	out, err := newDriver(p, s, 8).Run(context.Background(), apollo, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Sources)

	msgs := p.Requests()[1].Messages
	assert.Contains(t, msgs[len(msgs)-1].Content, NoSourcesNote)
}

func TestRun_ReasoningOnlyGetsNudged(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("I should think about this first."),
		llmtest.Text("READY"),
		llmtest.Text(goodVerdict),
	)

	out, err := newDriver(p, &fakeSearcher{}, 8).Run(context.Background(), apollo, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.State)

	msgs := p.Requests()[1].Messages
	assert.Equal(t, NudgeMessage(model.English), msgs[len(msgs)-1].Content)
}

func TestRun_TurnLimitForcesSynthesis(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("REASON: a\nSEARCH: one"),
		llmtest.Text("REASON: b\nSEARCH: two"),
		llmtest.Text(goodVerdict),
	)
	s := &fakeSearcher{}

	out, err := newDriver(p, s, 2).Run(context.Background(), apollo, nil)
	require.NoError(t, err)
	assert.True(t, out.Forced)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.Searches)
	assert.Len(t, out.Sources, 2)
	assert.Equal(t, 3, p.Calls())
}

func TestRun_TurnLimitWithoutEvidenceFails(t *testing.T) {
	p := llmtest.New(llmtest.Text("   "), llmtest.Text(""))

	out, err := newDriver(p, &fakeSearcher{}, 2).Run(context.Background(), apollo, nil)
	require.ErrorIs(t, err, ErrNoEvidence)
	assert.Equal(t, StateFailed, out.State)
	assert.Nil(t, out.Result)
	assert.Equal(t, 2, p.Calls())
}

func TestRun_MalformedVerdict(t *testing.T) {
	p := llmtest.New(llmtest.Text("READY"), llmtest.Text("no idea"), llmtest.Text("still no json"))

	out, err := newDriver(p, &fakeSearcher{}, 8).Run(context.Background(), apollo, nil)
	require.ErrorIs(t, err, model.ErrMalformedVerdict)
	assert.Equal(t, StateFailed, out.State)
	assert.False(t, out.Transcript.Frozen())
}

func TestRun_ModelErrorFails(t *testing.T) {
	p := llmtest.New(llmtest.Reply{Err: &model.UpstreamError{Service: "openai", Op: "chat", StatusCode: 401, Err: errors.New("bad key")}})

	out, err := newDriver(p, &fakeSearcher{}, 8).Run(context.Background(), apollo, nil)
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 1, out.Turns)
}

func TestRun_EmitterErrorStops(t *testing.T) {
	p := llmtest.New(
		llmtest.Text("REASON: a\nSEARCH: one"),
		llmtest.Text("READY"),
		llmtest.Text(goodVerdict),
	)
	s := &fakeSearcher{}
	rec := &recorder{stopAt: 1}

	out, err := newDriver(p, s, 8).Run(context.Background(), apollo, rec.emit)
	require.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, StateFailed, out.State)
	assert.Empty(t, s.queries)
	assert.Equal(t, 1, p.Calls())
}

func TestRun_InvalidLanguage(t *testing.T) {
	p := llmtest.New()
	_, err := newDriver(p, &fakeSearcher{}, 8).Run(context.Background(), Input{Statement: "x", Language: "klingon"}, nil)
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 0, p.Calls())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_search", StateAwaitingSearch.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestRun_CancelFinishesInFlightCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := llmtest.New(
		llmtest.Text("REASON: a\nSEARCH: one"),
		llmtest.Text("READY"),
	)
	var callErr error
	p.Hook = func(callCtx context.Context, call int) {
		cancel()
		callErr = callCtx.Err()
	}
	s := &fakeSearcher{}

	out, err := newDriver(p, s, 8).Run(ctx, apollo, nil)
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, callErr, "the in-flight call is not cancelled with the caller")
	assert.Equal(t, 1, p.Calls())
	assert.Empty(t, s.queries)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, 2, out.Transcript.Len(), "the completed reply is kept")
}
