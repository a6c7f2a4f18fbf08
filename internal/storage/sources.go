package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
)

const sourceColumns = `id, tenant_id, owner_id, category_id, path, type, last_scanned`

func scanSource(s scanner) (domain.Source, error) {
	var (
		src     domain.Source
		scanned sql.NullTime
	)
	if err := s.Scan(&src.ID, &src.TenantID, &src.OwnerID, &src.CategoryID, &src.Path, &src.Type, &scanned); err != nil {
		return domain.Source{}, err
	}
	src.LastScanned = nullTime(scanned)
	return src, nil
}

// InsertSource inserts a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, src domain.Source) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (tenant_id, owner_id, category_id, path, type)
		VALUES (?, ?, ?, ?, ?)
	`, src.TenantID, src.OwnerID, src.CategoryID, src.Path, src.Type)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("failed to insert source %s: %w", src.Path, errs.ErrAlreadyExists)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", src.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", src.Path, err)
	}
	return id, nil
}

// GetSource retrieves a source of the tenant by ID.
func (db *DB) GetSource(ctx context.Context, tenantID string, id int64) (*domain.Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+sourceColumns+` FROM sources WHERE tenant_id = ? AND id = ?
	`, tenantID, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, notFound(err, "failed to get source %d", id)
	}
	return &src, nil
}

// ListSources retrieves the tenant's sources, or all sources when tenantID
// is empty.
func (db *DB) ListSources(ctx context.Context, tenantID string) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE ? = '' OR tenant_id = ?
		ORDER BY id
	`, tenantID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteSource removes a source. Its cards are left to the caller.
func (db *DB) DeleteSource(ctx context.Context, tenantID string, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return expectRow(res, "source %d", id)
}

// MarkScanned updates the last_scanned timestamp for a source.
func (db *DB) MarkScanned(ctx context.Context, id int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE sources SET last_scanned = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", id, err)
	}
	return nil
}
