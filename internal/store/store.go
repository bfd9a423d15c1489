// Package store persists claims, analyses, sources and domains.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
)

// ClaimStore persists claims
type ClaimStore interface {
	CreateClaim(ctx context.Context, c *model.Claim) error
	GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	// BeginClaimAnalysis atomically moves a pending claim to analyzing.
	// It returns model.ErrClaimBusy if another analysis holds the claim.
	BeginClaimAnalysis(ctx context.Context, id uuid.UUID) error
	SetClaimStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus) error
}

// AnalysisStore persists analyses
type AnalysisStore interface {
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	GetAnalysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error)
	UpdateAnalysis(ctx context.Context, a *model.Analysis) error
	UpdateAnalysisText(ctx context.Context, id uuid.UUID, text string) error
	ListAnalysesByClaim(ctx context.Context, claimID uuid.UUID) ([]model.Analysis, error)
	AverageVeracity(ctx context.Context, from, to time.Time, lang model.Language) (float64, error)
}

// SourceStore persists evidence sources
type SourceStore interface {
	// CreateSource returns model.ErrConflict if the URL is already stored for the analysis
	CreateSource(ctx context.Context, s *model.Source) error
	GetSourceByURL(ctx context.Context, analysisID uuid.UUID, rawURL string) (*model.Source, error)
	UpdateSourceCredibility(ctx context.Context, id uuid.UUID, score *float64) error
	ListSources(ctx context.Context, analysisID uuid.UUID) ([]model.Source, error)
}

// DomainStore persists domains
type DomainStore interface {
	// CreateDomain returns model.ErrConflict if the name already exists
	CreateDomain(ctx context.Context, d *model.Domain) error
	GetDomainByName(ctx context.Context, name string) (*model.Domain, error)
	UpdateDomain(ctx context.Context, d *model.Domain) error
}

// TranscriptStore persists the model conversation of an analysis
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, analysisID uuid.UUID, msgs []model.Message) error
	LoadTranscript(ctx context.Context, analysisID uuid.UUID) ([]model.Message, error)
}

// FeedbackStore persists user feedback
type FeedbackStore interface {
	AddFeedback(ctx context.Context, f *model.Feedback) error
	ListFeedback(ctx context.Context, analysisID uuid.UUID) ([]model.Feedback, error)
}

// Store is the full persistence boundary
type Store interface {
	ClaimStore
	AnalysisStore
	SourceStore
	DomainStore
	TranscriptStore
	FeedbackStore
	Close() error
}
