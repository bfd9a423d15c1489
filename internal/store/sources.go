package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracity/internal/model"
)

// CreateSource inserts a source; a duplicate URL within the analysis is a conflict
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, analysis_id, url, url_hash, title, snippet, published_date,
			domain_id, credibility_score, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.AnalysisID, src.URL, src.URLHash(), src.Title, src.Snippet,
		nullString(src.PublishedDate), src.DomainID, nullFloat(src.CredibilityScore),
		src.Position, unixNano(src.CreatedAt), unixNano(src.UpdatedAt))
	return mapError(err, "source", src.URL)
}

const sourceSelect = `SELECT s.id, s.analysis_id, s.url, s.title, s.snippet, s.published_date,
	s.domain_id, s.credibility_score, s.position, s.created_at, s.updated_at,
	d.id, d.name, d.credibility_score, d.is_reliable, d.description, d.created_at, d.updated_at
	FROM sources s JOIN domains d ON d.id = s.domain_id`

// GetSourceByURL finds the source stored for a URL within an analysis
func (s *SQLite) GetSourceByURL(ctx context.Context, analysisID uuid.UUID, rawURL string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, sourceSelect+` WHERE s.analysis_id = ? AND s.url_hash = ?`,
		analysisID, model.HashURL(rawURL))
	src, err := scanSource(row)
	if err != nil {
		return nil, mapError(err, "source", rawURL)
	}
	return src, nil
}

// UpdateSourceCredibility overwrites the credibility snapshot of a source
func (s *SQLite) UpdateSourceCredibility(ctx context.Context, id uuid.UUID, score *float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET credibility_score = ?, updated_at = ? WHERE id = ?`,
		nullFloat(score), unixNano(time.Now()), id)
	if err != nil {
		return mapError(err, "source", id.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "source", ID: id.String()}
	}
	return nil
}

// ListSources returns the sources of an analysis in rank order
func (s *SQLite) ListSources(ctx context.Context, analysisID uuid.UUID) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		sourceSelect+` WHERE s.analysis_id = ? ORDER BY s.position, s.created_at`, analysisID)
	if err != nil {
		return nil, mapError(err, "analysis", analysisID.String())
	}
	defer func() { _ = rows.Close() }()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

func scanSource(row rowScanner) (*model.Source, error) {
	var (
		src                model.Source
		d                  model.Domain
		published          sql.NullString
		srcScore, domScore sql.NullFloat64
		reliable           int
		sCreated, sUpdated int64
		dCreated, dUpdated int64
	)
	if err := row.Scan(&src.ID, &src.AnalysisID, &src.URL, &src.Title, &src.Snippet, &published,
		&src.DomainID, &srcScore, &src.Position, &sCreated, &sUpdated,
		&d.ID, &d.Name, &domScore, &reliable, &d.Description, &dCreated, &dUpdated); err != nil {
		return nil, err
	}
	src.PublishedDate = stringPtr(published)
	src.CredibilityScore = floatPtr(srcScore)
	src.CreatedAt = fromUnixNano(sCreated)
	src.UpdatedAt = fromUnixNano(sUpdated)
	d.CredibilityScore = floatPtr(domScore)
	d.IsReliable = reliable != 0
	d.CreatedAt = fromUnixNano(dCreated)
	d.UpdatedAt = fromUnixNano(dUpdated)
	src.Domain = &d
	return &src, nil
}
