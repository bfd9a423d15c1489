package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
)

// SaveTranscript appends the messages not yet stored for the analysis
func (s *SQLite) SaveTranscript(ctx context.Context, analysisID uuid.UUID, msgs []model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE analysis_id = ?`, analysisID).Scan(&stored); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if stored > len(msgs) {
		return fmt.Errorf("transcript for %s has %d stored messages, got %d: %w",
			analysisID, stored, len(msgs), model.ErrConflict)
	}

	for i := stored; i < len(msgs); i++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (analysis_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			analysisID, i, string(msgs[i].Role), msgs[i].Content); err != nil {
			return mapError(err, "message", fmt.Sprintf("%s/%d", analysisID, i))
		}
	}
	return tx.Commit()
}

// LoadTranscript returns the stored conversation in order
func (s *SQLite) LoadTranscript(ctx context.Context, analysisID uuid.UUID) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE analysis_id = ? ORDER BY seq`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddFeedback stores a rating for an analysis
func (s *SQLite) AddFeedback(ctx context.Context, f *model.Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, analysis_id, user_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.AnalysisID, f.UserID, f.Rating, f.Comment, unixNano(f.CreatedAt))
	return mapError(err, "feedback", f.ID.String())
}

// ListFeedback returns the feedback of an analysis, oldest first
func (s *SQLite) ListFeedback(ctx context.Context, analysisID uuid.UUID) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, user_id, rating, comment, created_at
		 FROM feedback WHERE analysis_id = ? ORDER BY created_at`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Feedback
	for rows.Next() {
		var f model.Feedback
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.UserID, &f.Rating, &f.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.CreatedAt = fromUnixNano(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
