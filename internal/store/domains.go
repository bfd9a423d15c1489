package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// CreateDomain inserts a domain; an existing name is a conflict
func (s *SQLite) CreateDomain(ctx context.Context, d *model.Domain) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (id, name, credibility_score, is_reliable, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, nullFloat(d.CredibilityScore), boolInt(d.IsReliable), d.Description,
		unixNano(d.CreatedAt), unixNano(d.UpdatedAt))
	return mapError(err, "domain", d.Name)
}

// GetDomainByName loads a domain by its normalized name
func (s *SQLite) GetDomainByName(ctx context.Context, name string) (*model.Domain, error) {
	var (
		d                    model.Domain
		score                sql.NullFloat64
		reliable             int
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, credibility_score, is_reliable, description, created_at, updated_at
		 FROM domains WHERE name = ?`, name).
		Scan(&d.ID, &d.Name, &score, &reliable, &d.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapError(err, "domain", name)
	}
	d.CredibilityScore = floatPtr(score)
	d.IsReliable = reliable != 0
	d.CreatedAt = fromUnixNano(createdAt)
	d.UpdatedAt = fromUnixNano(updatedAt)
	return &d, nil
}

// UpdateDomain writes the moderated credibility fields of a domain
func (s *SQLite) UpdateDomain(ctx context.Context, d *model.Domain) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE domains SET credibility_score = ?, is_reliable = ?, description = ?, updated_at = ?
		 WHERE name = ?`,
		nullFloat(d.CredibilityScore), boolInt(d.IsReliable), d.Description, unixNano(d.UpdatedAt), d.Name)
	if err != nil {
		return mapError(err, "domain", d.Name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "domain", ID: d.Name}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
