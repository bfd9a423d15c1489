package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claim is a statement submitted by a user for verification
type Claim struct {
	ID        uuid.UUID   `json:"id"`
	UserID    string      `json:"user_id"`           // Opaque authenticated-user identifier
	Text      string      `json:"text"`              // The statement being checked
	Context   string      `json:"context,omitempty"` // Optional surrounding context
	Language  Language    `json:"language"`
	Status    ClaimStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ClaimStatus tracks a claim through analysis and moderation
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimAnalyzing ClaimStatus = "analyzing"
	ClaimAnalyzed  ClaimStatus = "analyzed"
	ClaimDisputed  ClaimStatus = "disputed"
	ClaimVerified  ClaimStatus = "verified"
	ClaimRejected  ClaimStatus = "rejected"
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimPending:   {ClaimAnalyzing},
	ClaimAnalyzing: {ClaimAnalyzed, ClaimPending},
	ClaimAnalyzed:  {ClaimDisputed, ClaimVerified, ClaimRejected},
}

// CanTransition reports whether a claim may move from s to next
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NewClaim validates the input and returns a pending claim
func NewClaim(userID, text, context string, lang Language) (*Claim, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Validationf("claim text is empty")
	}
	if err := lang.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Claim{
		ID:        uuid.New(),
		UserID:    userID,
		Text:      text,
		Context:   strings.TrimSpace(context),
		Language:  lang,
		Status:    ClaimPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
