package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (db *DB) levels(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
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
	out, err := db.levels(ctx, `
		SELECT category_id, level FROM category_priorities WHERE tenant_id = ?
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin priorities: %w", err)
	}
	return out, nil
}

// UserPriorities returns the user's own level of each category that has one.
func (db *DB) UserPriorities(ctx context.Context, tenantID, userID string) (map[string]int, error) {
	out, err := db.levels(ctx, `
		SELECT category_id, level FROM user_category_priorities WHERE tenant_id = ? AND user_id = ?
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user priorities: %w", err)
	}
	return out, nil
}

// OverrideMode returns the tenant's stored mode, or "" when none is set.
func (db *DB) OverrideMode(ctx context.Context, tenantID string) (string, error) {
	var mode string
	err := db.conn.QueryRowContext(ctx, `
		SELECT override_mode FROM tenant_settings WHERE tenant_id = ?
	`, tenantID).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load override mode: %w", err)
	}
	return mode, nil
}

// SetAdminPriority stores the tenant-wide level of a category.
func (db *DB) SetAdminPriority(ctx context.Context, tenantID, categoryID string, level int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO category_priorities (tenant_id, category_id, level) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, category_id) DO UPDATE SET level = excluded.level
	`, tenantID, categoryID, level)
	if err != nil {
		return fmt.Errorf("failed to set admin priority of %s: %w", categoryID, err)
	}
	return nil
}

// SetUserPriority stores a user's level of a category.
func (db *DB) SetUserPriority(ctx context.Context, tenantID, userID, categoryID string, level int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_category_priorities (tenant_id, user_id, category_id, level) VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id, category_id) DO UPDATE SET level = excluded.level
	`, tenantID, userID, categoryID, level)
	if err != nil {
		return fmt.Errorf("failed to set user priority of %s: %w", categoryID, err)
	}
	return nil
}

// DeleteUserPriority removes a user's level of a category.
func (db *DB) DeleteUserPriority(ctx context.Context, tenantID, userID, categoryID string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM user_category_priorities WHERE tenant_id = ? AND user_id = ? AND category_id = ?
	`, tenantID, userID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to delete user priority of %s: %w", categoryID, err)
	}
	return nil
}

// SetOverrideMode stores the tenant's override mode.
func (db *DB) SetOverrideMode(ctx context.Context, tenantID, mode string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant_id, override_mode) VALUES (?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET override_mode = excluded.override_mode
	`, tenantID, mode)
	if err != nil {
		return fmt.Errorf("failed to set override mode: %w", err)
	}
	return nil
}
