package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/conorfennell/skillcards/internal/domain"
)

// GetShare returns the share of a card with a user, or nil.
func (db *DB) GetShare(ctx context.Context, cardID, userID string) (*domain.Share, error) {
	s := domain.Share{CardID: cardID, UserID: userID}
	err := db.Pool.QueryRow(ctx,
		`SELECT accepted FROM card_shares WHERE card_id=$1 AND user_id=$2`, cardID, userID).Scan(&s.Accepted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get share of card %s: %w", cardID, err)
	}
	return &s, nil
}

// UpsertShare stores a share.
func (db *DB) UpsertShare(ctx context.Context, s domain.Share) error {
	_, err := db.Pool.Exec(ctx, `INSERT INTO card_shares (card_id, user_id, accepted) VALUES ($1, $2, $3)
		ON CONFLICT (card_id, user_id) DO UPDATE SET accepted=EXCLUDED.accepted`,
		s.CardID, s.UserID, s.Accepted)
	if err != nil {
		return fmt.Errorf("share card %s: %w", s.CardID, err)
	}
	return nil
}

// InsertDeck stores a deck with its categories.
func (db *DB) InsertDeck(ctx context.Context, d domain.Deck) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO decks (id, tenant_id, owner_id, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
			d.ID, d.TenantID, d.OwnerID, d.Name, d.CreatedAt); err != nil {
			return fmt.Errorf("insert deck %s: %w", d.ID, err)
		}
		for _, categoryID := range d.CategoryIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO deck_categories (deck_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				d.ID, categoryID); err != nil {
				return fmt.Errorf("add category %s to deck %s: %w", categoryID, d.ID, err)
			}
		}
		return nil
	})
}

// GetDeck retrieves a deck of the tenant with its categories.
func (db *DB) GetDeck(ctx context.Context, tenantID, deckID string) (*domain.Deck, error) {
	var d domain.Deck
	err := db.Pool.QueryRow(ctx, `SELECT d.id, d.tenant_id, d.owner_id, d.name, d.created_at,
			COALESCE(ARRAY(SELECT category_id FROM deck_categories WHERE deck_id=d.id ORDER BY category_id), '{}')
		FROM decks d WHERE d.tenant_id=$1 AND d.id=$2`, tenantID, deckID).
		Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.Name, &d.CreatedAt, &d.CategoryIDs)
	if err != nil {
		return nil, wrapNotFound(err, "get deck %s", deckID)
	}
	return &d, nil
}

// SetHidden hides or unhides a card in a deck.
func (db *DB) SetHidden(ctx context.Context, deckID, cardID string, hidden bool) error {
	query := `DELETE FROM deck_hidden_cards WHERE deck_id=$1 AND card_id=$2`
	if hidden {
		query = `INSERT INTO deck_hidden_cards (deck_id, card_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	}
	if _, err := db.Pool.Exec(ctx, query, deckID, cardID); err != nil {
		return fmt.Errorf("update hidden card %s: %w", cardID, err)
	}
	return nil
}

// HiddenCards returns the IDs of cards hidden in a deck.
func (db *DB) HiddenCards(ctx context.Context, deckID string) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT card_id FROM deck_hidden_cards WHERE deck_id=$1`, deckID)
	if err != nil {
		return nil, fmt.Errorf("load hidden cards of deck %s: %w", deckID, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan hidden card: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
