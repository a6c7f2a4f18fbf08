package library

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
)

// ShareCard offers one of the owner's cards to another user. A private
// card becomes shared.
func (l *Library) ShareCard(ctx context.Context, tenantID, ownerID, cardID, toUserID string) error {
	if toUserID == "" || toUserID == ownerID {
		return fmt.Errorf("%w: invalid share recipient", errs.ErrInvalidInput)
	}
	card, err := l.ownedCard(ctx, tenantID, ownerID, cardID)
	if err != nil {
		return err
	}
	if card.Visibility == domain.VisibilityPrivate {
		card.Visibility = domain.VisibilityShared
		card.UpdatedAt = l.now()
		if err := l.store.UpdateCard(ctx, *card); err != nil {
			return fmt.Errorf("update card visibility: %w", err)
		}
	}
	if err := l.store.UpsertShare(ctx, domain.Share{CardID: cardID, UserID: toUserID}); err != nil {
		return fmt.Errorf("share card: %w", err)
	}
	l.log.Info("card shared", zap.String("card_id", cardID), zap.String("to_user_id", toUserID))
	return nil
}

// AcceptShare adds a shared card to the recipient's study pool.
func (l *Library) AcceptShare(ctx context.Context, tenantID, userID, cardID string) error {
	if _, err := l.store.GetCard(ctx, tenantID, cardID); err != nil {
		return fmt.Errorf("get card %s: %w", cardID, err)
	}
	share, err := l.store.GetShare(ctx, cardID, userID)
	if err != nil {
		return fmt.Errorf("get share: %w", err)
	}
	if share == nil {
		return fmt.Errorf("share of card %s: %w", cardID, errs.ErrNotFound)
	}
	share.Accepted = true
	if err := l.store.UpsertShare(ctx, *share); err != nil {
		return fmt.Errorf("accept share: %w", err)
	}
	return nil
}

// NewDeck is the input of CreateDeck.
type NewDeck struct {
	TenantID    string   `json:"-" validate:"required"`
	OwnerID     string   `json:"-" validate:"required"`
	Name        string   `json:"name" validate:"required,max=200"`
	CategoryIDs []string `json:"category_ids" validate:"required,min=1,dive,required"`
}

// CreateDeck stores a deck over a set of categories.
func (l *Library) CreateDeck(ctx context.Context, in NewDeck) (domain.Deck, error) {
	if err := l.validate.Struct(in); err != nil {
		return domain.Deck{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	deck := domain.Deck{
		ID:          l.newID(),
		TenantID:    in.TenantID,
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		CategoryIDs: in.CategoryIDs,
		CreatedAt:   l.now(),
	}
	if err := l.store.InsertDeck(ctx, deck); err != nil {
		return domain.Deck{}, fmt.Errorf("insert deck: %w", err)
	}
	return deck, nil
}

// HideCard keeps a card out of a deck's batches without touching the card.
func (l *Library) HideCard(ctx context.Context, tenantID, userID, deckID, cardID string) error {
	return l.setHidden(ctx, tenantID, userID, deckID, cardID, true)
}

// UnhideCard undoes HideCard.
func (l *Library) UnhideCard(ctx context.Context, tenantID, userID, deckID, cardID string) error {
	return l.setHidden(ctx, tenantID, userID, deckID, cardID, false)
}

func (l *Library) setHidden(ctx context.Context, tenantID, userID, deckID, cardID string, hidden bool) error {
	deck, err := l.store.GetDeck(ctx, tenantID, deckID)
	if err != nil {
		return fmt.Errorf("get deck %s: %w", deckID, err)
	}
	if deck.OwnerID != userID {
		return fmt.Errorf("deck %s: %w", deckID, errs.ErrForbidden)
	}
	if err := l.store.SetHidden(ctx, deckID, cardID, hidden); err != nil {
		return fmt.Errorf("set hidden: %w", err)
	}
	return nil
}
