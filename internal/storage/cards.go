package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/study"
)

const cardColumns = `id, tenant_id, category_id, owner_id, question, answer, fingerprint,
	visibility, tags, difficulty, source_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c        domain.Card
		tags     string
		sourceID sql.NullInt64
	)
	err := s.Scan(&c.ID, &c.TenantID, &c.CategoryID, &c.OwnerID, &c.Question, &c.Answer,
		&c.Fingerprint, &c.Visibility, &tags, &c.Difficulty, &sourceID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Card{}, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return domain.Card{}, fmt.Errorf("decode tags of card %s: %w", c.ID, err)
	}
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	if sourceID.Valid {
		id := sourceID.Int64
		c.SourceID = &id
	}
	return c, nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// InsertCard inserts a new card. A second card with the same owner and
// fingerprint fails with errs.ErrAlreadyExists.
func (db *DB) InsertCard(ctx context.Context, c domain.Card) error {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.TenantID, c.CategoryID, c.OwnerID, c.Question, c.Answer, c.Fingerprint,
		c.Visibility, tags, c.Difficulty, nullInt64(c.SourceID), c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert card %s: %w", c.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard retrieves a card of the tenant by ID.
func (db *DB) GetCard(ctx context.Context, tenantID, cardID string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE tenant_id = ? AND id = ?
	`, tenantID, cardID)
	c, err := scanCard(row)
	if err != nil {
		return nil, notFound(err, "failed to get card %s", cardID)
	}
	return &c, nil
}

// FindByFingerprint retrieves the owner's card with the fingerprint, or nil.
func (db *DB) FindByFingerprint(ctx context.Context, tenantID, ownerID, fp string) (*domain.Card, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE tenant_id = ? AND owner_id = ? AND fingerprint = ?
	`, tenantID, ownerID, fp)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card by fingerprint %s: %w", fp, err)
	}
	return &c, nil
}

// UpdateCard writes the editable fields of a card.
func (db *DB) UpdateCard(ctx context.Context, c domain.Card) error {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET category_id = ?, question = ?, answer = ?, fingerprint = ?, visibility = ?,
		    tags = ?, difficulty = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`,
		c.CategoryID, c.Question, c.Answer, c.Fingerprint, c.Visibility,
		tags, c.Difficulty, c.UpdatedAt, c.TenantID, c.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update card %s: %w", c.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	return expectRow(res, "card %s", c.ID)
}

// DeleteCard removes a card and its progress, reviews, shares and hidden
// entries in one transaction.
func (db *DB) DeleteCard(ctx context.Context, tenantID, cardID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE tenant_id = ? AND id = ?`, tenantID, cardID)
		if err != nil {
			return fmt.Errorf("failed to delete card %s: %w", cardID, err)
		}
		if err := expectRow(res, "card %s", cardID); err != nil {
			return err
		}
		for _, table := range []string{"card_progress", "review_logs", "card_shares", "deck_hidden_cards"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE card_id = ?`, cardID); err != nil {
				return fmt.Errorf("failed to delete %s of card %s: %w", table, cardID, err)
			}
		}
		return nil
	})
}

// CandidateCards returns the cards a user may study: their own, public
// cards and accepted shares, limited to the deck's categories when the
// scope names a deck.
func (db *DB) CandidateCards(ctx context.Context, scope study.Scope) ([]domain.Card, error) {
	query := `
		SELECT ` + cardColumns + ` FROM cards c
		WHERE c.tenant_id = ?
		  AND (c.owner_id = ?
		       OR c.visibility = 'public'
		       OR EXISTS (SELECT 1 FROM card_shares s
		                  WHERE s.card_id = c.id AND s.user_id = ? AND s.accepted = 1))`
	args := []any{scope.TenantID, scope.UserID, scope.UserID}

	if scope.DeckID != "" {
		if _, err := db.GetDeck(ctx, scope.TenantID, scope.DeckID); err != nil {
			return nil, err
		}
		query += `
		  AND c.category_id IN (SELECT category_id FROM deck_categories WHERE deck_id = ?)`
		args = append(args, scope.DeckID)
	}
	query += ` ORDER BY c.id`

	cards, err := db.queryCards(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate cards: %w", err)
	}
	return cards, nil
}

// CardsBySource retrieves all cards created from a source.
func (db *DB) CardsBySource(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	cards, err := db.queryCards(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE source_id = ? ORDER BY id
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

// Categories returns all categories of a tenant ordered by name.
func (db *DB) Categories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, tenant_id, name, created_at FROM categories
		WHERE tenant_id = ? ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnsureCategory inserts cat unless the tenant already has a category with
// that name, and returns the stored category.
func (db *DB) EnsureCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	var out domain.Category
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, name) DO NOTHING
		`, cat.ID, cat.TenantID, cat.Name, cat.CreatedAt); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT id, tenant_id, name, created_at FROM categories WHERE tenant_id = ? AND name = ?
		`, cat.TenantID, cat.Name).Scan(&out.ID, &out.TenantID, &out.Name, &out.CreatedAt)
	})
	if err != nil {
		return domain.Category{}, fmt.Errorf("failed to ensure category %q: %w", cat.Name, err)
	}
	return out, nil
}

func expectRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, errs.ErrNotFound)...)
	}
	return nil
}
