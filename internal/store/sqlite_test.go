package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedClaim(t *testing.T, s *SQLite) *model.Claim {
	t.Helper()
	c, err := model.NewClaim("user-1", "The Eiffel Tower is in Paris", "", model.English)
	require.NoError(t, err)
	require.NoError(t, s.CreateClaim(context.Background(), c))
	return c
}

func seedAnalysis(t *testing.T, s *SQLite, claimID uuid.UUID) *model.Analysis {
	t.Helper()
	a := model.NewAnalysis(claimID)
	require.NoError(t, s.CreateAnalysis(context.Background(), a))
	return a
}

func seedDomain(t *testing.T, s *SQLite, name string, score *float64) *model.Domain {
	t.Helper()
	now := time.Now().UTC()
	d := &model.Domain{ID: uuid.New(), Name: name, CredibilityScore: score, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateDomain(context.Background(), d))
	return d
}

func TestClaimRoundTrip(t *testing.T) {
	s := openTest(t)
	c := seedClaim(t, s)

	got, err := s.GetClaim(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, model.ClaimPending, got.Status)
	assert.Equal(t, model.English, got.Language)

	_, err = s.GetClaim(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestBeginClaimAnalysisRejectsSecondStart(t *testing.T) {
	s := openTest(t)
	c := seedClaim(t, s)
	ctx := context.Background()

	require.NoError(t, s.BeginClaimAnalysis(ctx, c.ID))
	assert.ErrorIs(t, s.BeginClaimAnalysis(ctx, c.ID), model.ErrClaimBusy)

	require.NoError(t, s.SetClaimStatus(ctx, c.ID, model.ClaimPending))
	require.NoError(t, s.BeginClaimAnalysis(ctx, c.ID))
	require.NoError(t, s.SetClaimStatus(ctx, c.ID, model.ClaimAnalyzed))

	err := s.BeginClaimAnalysis(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestBeginClaimAnalysisConcurrent(t *testing.T) {
	s := openTest(t)
	c := seedClaim(t, s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		busy int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.BeginClaimAnalysis(context.Background(), c.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, model.ErrClaimBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, busy)
}

func TestSetClaimStatusRejectsInvalidTransition(t *testing.T) {
	s := openTest(t)
	c := seedClaim(t, s)

	err := s.SetClaimStatus(context.Background(), c.ID, model.ClaimVerified)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAnalysisUpdateKeepsOriginalText(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	c := seedClaim(t, s)
	a := seedAnalysis(t, s, c.ID)

	a.Status = model.AnalysisCompleted
	a.VeracityScore = model.Float(0.85)
	a.ConfidenceScore = model.Float(0.6)
	a.AnalysisText = "first"
	a.OriginalText = "first"
	a.LogProbs = &model.LogProbs{Tokens: []string{"a"}, LogProbs: []float64{-0.1}, Probs: []float64{0.9}, SelfConfidence: 0.9}
	require.NoError(t, s.UpdateAnalysis(ctx, a))

	a.OriginalText = "second"
	require.NoError(t, s.UpdateAnalysis(ctx, a))
	require.NoError(t, s.UpdateAnalysisText(ctx, a.ID, "rewritten"))

	got, err := s.GetAnalysis(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.OriginalText)
	assert.Equal(t, "rewritten", got.AnalysisText)
	require.NotNil(t, got.VeracityScore)
	assert.InDelta(t, 0.85, *got.VeracityScore, 1e-9)
	require.NotNil(t, got.LogProbs)
	assert.Equal(t, model.LogProbsVersion, got.LogProbs.Version)
	assert.Equal(t, []string{"a"}, got.LogProbs.Tokens)
}

func TestAnalysisRejectsOutOfRangeScore(t *testing.T) {
	s := openTest(t)
	c := seedClaim(t, s)
	a := seedAnalysis(t, s, c.ID)

	a.VeracityScore = model.Float(1.5)
	assert.ErrorIs(t, s.UpdateAnalysis(context.Background(), a), model.ErrValidation)
}

func TestSourceDuplicateURLIsConflict(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	c := seedClaim(t, s)
	a := seedAnalysis(t, s, c.ID)
	d := seedDomain(t, s, "example.com", nil)

	now := time.Now().UTC()
	src := &model.Source{ID: uuid.New(), AnalysisID: a.ID, URL: "https://example.com/a", Title: "A",
		DomainID: d.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateSource(ctx, src))

	dup := *src
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateSource(ctx, &dup), model.ErrConflict)

	existing, err := s.GetSourceByURL(ctx, a.ID, src.URL)
	require.NoError(t, err)
	assert.Equal(t, src.ID, existing.ID)
	assert.Nil(t, existing.CredibilityScore)
	assert.Nil(t, existing.PublishedDate)
	assert.Equal(t, "example.com", existing.Domain.Name)

	require.NoError(t, s.UpdateSourceCredibility(ctx, existing.ID, model.Float(0.4)))
	list, err := s.ListSources(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.InDelta(t, 0.4, *list[0].CredibilityScore, 1e-9)
}

func TestDomainConflictAndUpdate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	d := seedDomain(t, s, "example.org", nil)

	again := *d
	again.ID = uuid.New()
	assert.ErrorIs(t, s.CreateDomain(ctx, &again), model.ErrConflict)

	d.CredibilityScore = model.Float(0.8)
	d.IsReliable = true
	d.Description = "Reference site"
	require.NoError(t, s.UpdateDomain(ctx, d))

	got, err := s.GetDomainByName(ctx, "example.org")
	require.NoError(t, err)
	assert.True(t, got.IsReliable)
	assert.Equal(t, "Reference site", got.Description)
	assert.InDelta(t, 0.8, *got.CredibilityScore, 1e-9)

	_, err = s.GetDomainByName(ctx, "missing.org")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTranscriptAppendsOnlyNewMessages(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	c := seedClaim(t, s)
	a := seedAnalysis(t, s, c.ID)

	msgs := []model.Message{{Role: model.RoleSystem, Content: "sys"}, {Role: model.RoleAssistant, Content: "REASON: x"}}
	require.NoError(t, s.SaveTranscript(ctx, a.ID, msgs))
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: "results"})
	require.NoError(t, s.SaveTranscript(ctx, a.ID, msgs))

	got, err := s.LoadTranscript(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	assert.ErrorIs(t, s.SaveTranscript(ctx, a.ID, msgs[:1]), model.ErrConflict)
}

func TestAverageVeracity(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	avg, err := s.AverageVeracity(ctx, from, to, model.English)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	for _, score := range []float64{0.2, 0.6} {
		c := seedClaim(t, s)
		a := seedAnalysis(t, s, c.ID)
		a.Status = model.AnalysisCompleted
		a.VeracityScore = model.Float(score)
		require.NoError(t, s.UpdateAnalysis(ctx, a))
	}

	avg, err = s.AverageVeracity(ctx, from, to, model.English)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, avg, 1e-9)

	avg, err = s.AverageVeracity(ctx, from, to, model.French)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)
}

func TestFeedback(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	c := seedClaim(t, s)
	a := seedAnalysis(t, s, c.ID)

	bad := &model.Feedback{ID: uuid.New(), AnalysisID: a.ID, Rating: 9}
	assert.ErrorIs(t, s.AddFeedback(ctx, bad), model.ErrValidation)

	f := &model.Feedback{ID: uuid.New(), AnalysisID: a.ID, UserID: "u", Rating: 4, Comment: "ok", CreatedAt: time.Now()}
	require.NoError(t, s.AddFeedback(ctx, f))

	list, err := s.ListFeedback(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].Comment)
}
