package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
)

const sourceColumns = `id, tenant_id, owner_id, category_id, path, type, last_scanned`

func scanSource(row pgx.Row) (domain.Source, error) {
	var (
		src domain.Source
		typ string
	)
	if err := row.Scan(&src.ID, &src.TenantID, &src.OwnerID, &src.CategoryID, &src.Path, &typ, &src.LastScanned); err != nil {
		return domain.Source{}, err
	}
	src.Type = domain.SourceType(typ)
	return src, nil
}

// InsertSource inserts a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, src domain.Source) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `INSERT INTO sources (tenant_id, owner_id, category_id, path, type)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		src.TenantID, src.OwnerID, src.CategoryID, src.Path, string(src.Type)).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert source %s: %w", src.Path, errs.ErrAlreadyExists)
	}
	if err != nil {
		return 0, fmt.Errorf("insert source %s: %w", src.Path, err)
	}
	return id, nil
}

// GetSource retrieves a source of the tenant by ID.
func (db *DB) GetSource(ctx context.Context, tenantID string, id int64) (*domain.Source, error) {
	src, err := scanSource(db.Pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return nil, wrapNotFound(err, "get source %d", id)
	}
	return &src, nil
}

// ListSources retrieves the tenant's sources, or all sources when tenantID
// is empty.
func (db *DB) ListSources(ctx context.Context, tenantID string) ([]domain.Source, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE $1='' OR tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteSource removes a source. Its cards are left to the caller.
func (db *DB) DeleteSource(ctx context.Context, tenantID string, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sources WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return expectRow(tag, "source %d", id)
}

// MarkScanned updates the last_scanned timestamp for a source.
func (db *DB) MarkScanned(ctx context.Context, id int64, at time.Time) error {
	if _, err := db.Pool.Exec(ctx, `UPDATE sources SET last_scanned=$2 WHERE id=$1`, id, at); err != nil {
		return fmt.Errorf("mark source %d scanned: %w", id, err)
	}
	return nil
}
