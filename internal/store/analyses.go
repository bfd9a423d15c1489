package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
)

const analysisColumns = `id, claim_id, veracity_score, confidence_score, analysis_text, original_text,
	error, status, log_probs, created_at, updated_at`

// CreateAnalysis inserts a new analysis
func (s *SQLite) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	if err := a.Validate(); err != nil {
		return err
	}
	lp, err := encodeLogProbs(a.LogProbs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (`+analysisColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClaimID, nullFloat(a.VeracityScore), nullFloat(a.ConfidenceScore),
		a.AnalysisText, a.OriginalText, a.Error, string(a.Status), lp,
		unixNano(a.CreatedAt), unixNano(a.UpdatedAt))
	return mapError(err, "analysis", a.ID.String())
}

// GetAnalysis loads an analysis without its sources or feedback
func (s *SQLite) GetAnalysis(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, mapError(err, "analysis", id.String())
	}
	return a, nil
}

// UpdateAnalysis writes status, scores, texts, error and log-probabilities.
// OriginalText is only written while it is still empty.
func (s *SQLite) UpdateAnalysis(ctx context.Context, a *model.Analysis) error {
	if err := a.Validate(); err != nil {
		return err
	}
	lp, err := encodeLogProbs(a.LogProbs)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET veracity_score = ?, confidence_score = ?, analysis_text = ?,
			original_text = CASE WHEN original_text = '' THEN ? ELSE original_text END,
			error = ?, status = ?, log_probs = ?, updated_at = ?
		 WHERE id = ?`,
		nullFloat(a.VeracityScore), nullFloat(a.ConfidenceScore), a.AnalysisText,
		a.OriginalText, a.Error, string(a.Status), lp, unixNano(a.UpdatedAt), a.ID)
	if err != nil {
		return mapError(err, "analysis", a.ID.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "analysis", ID: a.ID.String()}
	}
	return nil
}

// UpdateAnalysisText replaces only the presented analysis text
func (s *SQLite) UpdateAnalysisText(ctx context.Context, id uuid.UUID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET analysis_text = ?, updated_at = ? WHERE id = ?`,
		text, unixNano(time.Now()), id)
	if err != nil {
		return mapError(err, "analysis", id.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "analysis", ID: id.String()}
	}
	return nil
}

// ListAnalysesByClaim returns a claim's analyses, oldest first
func (s *SQLite) ListAnalysesByClaim(ctx context.Context, claimID uuid.UUID) ([]model.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE claim_id = ? ORDER BY created_at`, claimID)
	if err != nil {
		return nil, mapError(err, "claim", claimID.String())
	}
	defer func() { _ = rows.Close() }()

	var out []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AverageVeracity averages completed veracity scores of claims created in [from, to)
// in the given language. It returns 0 when nothing matches.
func (s *SQLite) AverageVeracity(ctx context.Context, from, to time.Time, lang model.Language) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(a.veracity_score) FROM analyses a JOIN claims c ON c.id = a.claim_id
		 WHERE a.status = ? AND a.veracity_score IS NOT NULL
		   AND c.language = ? AND c.created_at >= ? AND c.created_at < ?`,
		string(model.AnalysisCompleted), string(lang), unixNano(from), unixNano(to)).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average veracity: %w", err)
	}
	return avg.Float64, nil
}

func scanAnalysis(row rowScanner) (*model.Analysis, error) {
	var (
		a                    model.Analysis
		veracity, confidence sql.NullFloat64
		status               string
		lp                   sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.ClaimID, &veracity, &confidence, &a.AnalysisText, &a.OriginalText,
		&a.Error, &status, &lp, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.VeracityScore = floatPtr(veracity)
	a.ConfidenceScore = floatPtr(confidence)
	a.Status = model.AnalysisStatus(status)
	a.CreatedAt = fromUnixNano(createdAt)
	a.UpdatedAt = fromUnixNano(updatedAt)
	if lp.Valid && lp.String != "" {
		decoded, err := model.UnmarshalLogProbs([]byte(lp.String))
		if err != nil {
			return nil, err
		}
		a.LogProbs = decoded
	}
	return &a, nil
}

func encodeLogProbs(lp *model.LogProbs) (sql.NullString, error) {
	if lp == nil {
		return sql.NullString{}, nil
	}
	data, err := lp.Marshal()
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode logprobs: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
