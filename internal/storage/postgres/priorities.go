package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (db *DB) levels(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			categoryID string
			level      int
		)
		if err := rows.Scan(&categoryID, &level); err != nil {
			return nil, err
		}
		out[categoryID] = level
	}
	return out, rows.Err()
}

// AdminPriorities returns the tenant-wide level of each category that has one.
func (db *DB) AdminPriorities(ctx context.Context, tenantID string) (map[string]int, error) {
	out, err := db.levels(ctx,
		`SELECT category_id, level FROM category_priorities WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load admin priorities: %w", err)
	}
	return out, nil
}

// UserPriorities returns the user's own level of each category that has one.
func (db *DB) UserPriorities(ctx context.Context, tenantID, userID string) (map[string]int, error) {
	out, err := db.levels(ctx,
		`SELECT category_id, level FROM user_category_priorities WHERE tenant_id=$1 AND user_id=$2`,
		tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("load user priorities: %w", err)
	}
	return out, nil
}

// OverrideMode returns the tenant's stored mode, or "" when none is set.
func (db *DB) OverrideMode(ctx context.Context, tenantID string) (string, error) {
	var mode string
	err := db.Pool.QueryRow(ctx,
		`SELECT override_mode FROM tenant_settings WHERE tenant_id=$1`, tenantID).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load override mode: %w", err)
	}
	return mode, nil
}

// SetAdminPriority stores the tenant-wide level of a category.
func (db *DB) SetAdminPriority(ctx context.Context, tenantID, categoryID string, level int) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO category_priorities (tenant_id, category_id, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, category_id) DO UPDATE SET level=EXCLUDED.level`,
		tenantID, categoryID, level)
	if err != nil {
		return fmt.Errorf("set admin priority of %s: %w", categoryID, err)
	}
	return nil
}

// SetUserPriority stores a user's level of a category.
func (db *DB) SetUserPriority(ctx context.Context, tenantID, userID, categoryID string, level int) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO user_category_priorities (tenant_id, user_id, category_id, level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, user_id, category_id) DO UPDATE SET level=EXCLUDED.level`,
		tenantID, userID, categoryID, level)
	if err != nil {
		return fmt.Errorf("set user priority of %s: %w", categoryID, err)
	}
	return nil
}

// DeleteUserPriority removes a user's level of a category.
func (db *DB) DeleteUserPriority(ctx context.Context, tenantID, userID, categoryID string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM user_category_priorities WHERE tenant_id=$1 AND user_id=$2 AND category_id=$3`,
		tenantID, userID, categoryID)
	if err != nil {
		return fmt.Errorf("delete user priority of %s: %w", categoryID, err)
	}
	return nil
}

// SetOverrideMode stores the tenant's override mode.
func (db *DB) SetOverrideMode(ctx context.Context, tenantID, mode string) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO tenant_settings (tenant_id, override_mode) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET override_mode=EXCLUDED.override_mode`,
		tenantID, mode)
	if err != nil {
		return fmt.Errorf("set override mode: %w", err)
	}
	return nil
}
