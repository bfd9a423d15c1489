package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
)

// CreateClaim inserts a new claim
func (s *SQLite) CreateClaim(ctx context.Context, c *model.Claim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (id, user_id, text, context, language, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Text, c.Context, string(c.Language), string(c.Status),
		unixNano(c.CreatedAt), unixNano(c.UpdatedAt))
	return mapError(err, "claim", c.ID.String())
}

// GetClaim loads a claim by id
func (s *SQLite) GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	var (
		c                    model.Claim
		lang, status         string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, text, context, language, status, created_at, updated_at
		 FROM claims WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Text, &c.Context, &lang, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapError(err, "claim", id.String())
	}
	c.Language = model.Language(lang)
	c.Status = model.ClaimStatus(status)
	c.CreatedAt = fromUnixNano(createdAt)
	c.UpdatedAt = fromUnixNano(updatedAt)
	return &c, nil
}

// BeginClaimAnalysis moves a pending claim to analyzing in one statement
func (s *SQLite) BeginClaimAnalysis(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.ClaimAnalyzing), unixNano(time.Now()), id, string(model.ClaimPending))
	if err != nil {
		return mapError(err, "claim", id.String())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	c, err := s.GetClaim(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == model.ClaimAnalyzing {
		return model.ErrClaimBusy
	}
	return model.Validationf("claim %s is %s and cannot be analyzed", id, c.Status)
}

// SetClaimStatus applies a validated status transition
func (s *SQLite) SetClaimStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus) error {
	c, err := s.GetClaim(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == status {
		return nil
	}
	if !c.Status.CanTransition(status) {
		return model.Validationf("claim %s: cannot move from %s to %s", id, c.Status, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), unixNano(time.Now()), id, string(c.Status))
	if err != nil {
		return mapError(err, "claim", id.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claim %s changed concurrently: %w", id, model.ErrConflict)
	}
	return nil
}
