package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/skillcards/internal/domain"
)

// GetShare returns the share of a card with a user, or nil.
func (db *DB) GetShare(ctx context.Context, cardID, userID string) (*domain.Share, error) {
	s := domain.Share{CardID: cardID, UserID: userID}
	err := db.conn.QueryRowContext(ctx, `
		SELECT accepted FROM card_shares WHERE card_id = ? AND user_id = ?
	`, cardID, userID).Scan(&s.Accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share of card %s: %w", cardID, err)
	}
	return &s, nil
}

// UpsertShare stores a share.
func (db *DB) UpsertShare(ctx context.Context, s domain.Share) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO card_shares (card_id, user_id, accepted) VALUES (?, ?, ?)
		ON CONFLICT (card_id, user_id) DO UPDATE SET accepted = excluded.accepted
	`, s.CardID, s.UserID, s.Accepted)
	if err != nil {
		return fmt.Errorf("failed to share card %s: %w", s.CardID, err)
	}
	return nil
}

// InsertDeck stores a deck with its categories.
func (db *DB) InsertDeck(ctx context.Context, d domain.Deck) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decks (id, tenant_id, owner_id, name, created_at) VALUES (?, ?, ?, ?, ?)
		`, d.ID, d.TenantID, d.OwnerID, d.Name, d.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert deck %s: %w", d.ID, err)
		}
		for _, categoryID := range d.CategoryIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO deck_categories (deck_id, category_id) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, d.ID, categoryID); err != nil {
				return fmt.Errorf("failed to add category %s to deck %s: %w", categoryID, d.ID, err)
			}
		}
		return nil
	})
}

// GetDeck retrieves a deck of the tenant with its categories.
func (db *DB) GetDeck(ctx context.Context, tenantID, deckID string) (*domain.Deck, error) {
	var d domain.Deck
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, owner_id, name, created_at FROM decks WHERE tenant_id = ? AND id = ?
	`, tenantID, deckID).Scan(&d.ID, &d.TenantID, &d.OwnerID, &d.Name, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err, "failed to get deck %s", deckID)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT category_id FROM deck_categories WHERE deck_id = ? ORDER BY category_id
	`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories of deck %s: %w", deckID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deck category: %w", err)
		}
		d.CategoryIDs = append(d.CategoryIDs, id)
	}
	return &d, rows.Err()
}

// SetHidden hides or unhides a card in a deck.
func (db *DB) SetHidden(ctx context.Context, deckID, cardID string, hidden bool) error {
	query := `DELETE FROM deck_hidden_cards WHERE deck_id = ? AND card_id = ?`
	if hidden {
		query = `INSERT INTO deck_hidden_cards (deck_id, card_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	}
	if _, err := db.conn.ExecContext(ctx, query, deckID, cardID); err != nil {
		return fmt.Errorf("failed to update hidden card %s: %w", cardID, err)
	}
	return nil
}

// HiddenCards returns the IDs of cards hidden in a deck.
func (db *DB) HiddenCards(ctx context.Context, deckID string) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT card_id FROM deck_hidden_cards WHERE deck_id = ?`, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hidden cards of deck %s: %w", deckID, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hidden card: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}
