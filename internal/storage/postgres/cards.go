package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/study"
)

const cardColumns = `id, tenant_id, category_id, owner_id, question, answer, fingerprint,
	visibility, tags, difficulty, source_id, created_at, updated_at`

func scanCard(row pgx.Row) (domain.Card, error) {
	var (
		c          domain.Card
		visibility string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.CategoryID, &c.OwnerID, &c.Question, &c.Answer,
		&c.Fingerprint, &visibility, &c.Tags, &c.Difficulty, &c.SourceID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Card{}, err
	}
	c.Visibility = domain.Visibility(visibility)
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	return c, nil
}

func (db *DB) queryCards(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
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

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// InsertCard inserts a new card.
func (db *DB) InsertCard(ctx context.Context, c domain.Card) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.TenantID, c.CategoryID, c.OwnerID, c.Question, c.Answer, c.Fingerprint,
		string(c.Visibility), tagsArg(c.Tags), c.Difficulty, c.SourceID, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert card %s: %w", c.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard retrieves a card of the tenant by ID.
func (db *DB) GetCard(ctx context.Context, tenantID, cardID string) (*domain.Card, error) {
	c, err := scanCard(db.Pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE tenant_id=$1 AND id=$2`, tenantID, cardID))
	if err != nil {
		return nil, wrapNotFound(err, "get card %s", cardID)
	}
	return &c, nil
}

// FindByFingerprint retrieves the owner's card with the fingerprint, or nil.
func (db *DB) FindByFingerprint(ctx context.Context, tenantID, ownerID, fp string) (*domain.Card, error) {
	c, err := scanCard(db.Pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE tenant_id=$1 AND owner_id=$2 AND fingerprint=$3`,
		tenantID, ownerID, fp))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find card by fingerprint %s: %w", fp, err)
	}
	return &c, nil
}

// UpdateCard writes the editable fields of a card.
func (db *DB) UpdateCard(ctx context.Context, c domain.Card) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE cards
		SET category_id=$3, question=$4, answer=$5, fingerprint=$6, visibility=$7,
		    tags=$8, difficulty=$9, updated_at=$10
		WHERE tenant_id=$1 AND id=$2`,
		c.TenantID, c.ID, c.CategoryID, c.Question, c.Answer, c.Fingerprint, string(c.Visibility),
		tagsArg(c.Tags), c.Difficulty, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("update card %s: %w", c.ID, errs.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("update card %s: %w", c.ID, err)
	}
	return expectRow(tag, "card %s", c.ID)
}

// DeleteCard removes a card and its progress, reviews, shares and hidden
// entries in one transaction.
func (db *DB) DeleteCard(ctx context.Context, tenantID, cardID string) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM cards WHERE tenant_id=$1 AND id=$2`, tenantID, cardID)
		if err != nil {
			return fmt.Errorf("delete card %s: %w", cardID, err)
		}
		if err := expectRow(tag, "card %s", cardID); err != nil {
			return err
		}
		for _, table := range []string{"card_progress", "review_logs", "card_shares", "deck_hidden_cards"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE card_id=$1`, cardID); err != nil {
				return fmt.Errorf("delete %s of card %s: %w", table, cardID, err)
			}
		}
		return nil
	})
}

// CandidateCards returns the user's own cards, public cards and accepted
// shares, limited to the deck's categories when the scope names a deck.
func (db *DB) CandidateCards(ctx context.Context, scope study.Scope) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards c
		WHERE c.tenant_id=$1
		  AND (c.owner_id=$2
		       OR c.visibility='public'
		       OR EXISTS (SELECT 1 FROM card_shares s
		                  WHERE s.card_id=c.id AND s.user_id=$2 AND s.accepted))`
	args := []any{scope.TenantID, scope.UserID}

	if scope.DeckID != "" {
		if _, err := db.GetDeck(ctx, scope.TenantID, scope.DeckID); err != nil {
			return nil, err
		}
		query += ` AND c.category_id IN (SELECT category_id FROM deck_categories WHERE deck_id=$3)`
		args = append(args, scope.DeckID)
	}
	query += ` ORDER BY c.id`

	cards, err := db.queryCards(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load candidate cards: %w", err)
	}
	return cards, nil
}

// CardsBySource retrieves all cards created from a source.
func (db *DB) CardsBySource(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	cards, err := db.queryCards(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE source_id=$1 ORDER BY id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("cards of source %d: %w", sourceID, err)
	}
	return cards, nil
}

// Categories returns all categories of a tenant ordered by name.
func (db *DB) Categories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, tenant_id, name, created_at FROM categories WHERE tenant_id=$1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnsureCategory inserts cat unless the tenant already has a category with
// that name, and returns the stored category.
func (db *DB) EnsureCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	var out domain.Category
	err := db.Pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO categories (id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, name) DO NOTHING
			RETURNING id, tenant_id, name, created_at
		)
		SELECT id, tenant_id, name, created_at FROM ins
		UNION ALL
		SELECT id, tenant_id, name, created_at FROM categories WHERE tenant_id=$2 AND name=$3
		LIMIT 1`,
		cat.ID, cat.TenantID, cat.Name, cat.CreatedAt,
	).Scan(&out.ID, &out.TenantID, &out.Name, &out.CreatedAt)
	if err != nil {
		return domain.Category{}, fmt.Errorf("ensure category %q: %w", cat.Name, err)
	}
	return out, nil
}
