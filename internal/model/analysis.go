package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus tracks one verification run
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
	AnalysisDisputed   AnalysisStatus = "disputed"
)

// Terminal reports whether no further work will happen on the analysis
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed || s == AnalysisDisputed
}

// Analysis is the outcome of one run of the reasoning loop for a claim
type Analysis struct {
	ID              uuid.UUID      `json:"id"`
	ClaimID         uuid.UUID      `json:"claim_id"`
	VeracityScore   *float64       `json:"veracity_score"`   // [0,1], nil unless completed
	ConfidenceScore *float64       `json:"confidence_score"` // [0,1], derived from token log-probabilities
	AnalysisText    string         `json:"analysis_text"`
	OriginalText    string         `json:"original_text,omitempty"` // Write-once base for assertiveness rewrites
	Error           string         `json:"error,omitempty"`
	Status          AnalysisStatus `json:"status"`
	LogProbs        *LogProbs      `json:"log_probs,omitempty"`
	Sources         []Source       `json:"sources,omitempty"`
	Feedback        []Feedback     `json:"feedback,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewAnalysis returns a pending analysis for the claim
func NewAnalysis(claimID uuid.UUID) *Analysis {
	now := time.Now().UTC()
	return &Analysis{
		ID:        uuid.New(),
		ClaimID:   claimID,
		Status:    AnalysisPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the score ranges
func (a *Analysis) Validate() error {
	if err := checkUnit("veracity_score", a.VeracityScore); err != nil {
		return err
	}
	return checkUnit("confidence_score", a.ConfidenceScore)
}

func checkUnit(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 1 || *v != *v {
		return Validationf("%s %v outside [0,1]", field, *v)
	}
	return nil
}

// Feedback is a user's rating of an analysis
type Feedback struct {
	ID         uuid.UUID `json:"id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
	UserID     string    `json:"user_id"`
	Rating     float64   `json:"rating"` // 1-5
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the rating range
func (f *Feedback) Validate() error {
	if f.Rating < 1 || f.Rating > 5 {
		return Validationf("rating %v outside [1,5]", f.Rating)
	}
	return nil
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }
