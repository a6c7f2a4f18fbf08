// Package library manages the cards, categories, shares and decks a user
// studies from. Cards are deduplicated per owner by their fingerprint.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/fingerprint"
)

// ErrDuplicateCard is returned when the owner already has a card with the
// same fingerprint. The existing card is returned alongside it.
var ErrDuplicateCard = fmt.Errorf("duplicate card: %w", errs.ErrAlreadyExists)

// Store persists library entities.
type Store interface {
	InsertCard(ctx context.Context, card domain.Card) error
	GetCard(ctx context.Context, tenantID, cardID string) (*domain.Card, error)

	// FindByFingerprint returns the owner's card with the fingerprint, or
	// nil when there is none.
	FindByFingerprint(ctx context.Context, tenantID, ownerID, fp string) (*domain.Card, error)
	UpdateCard(ctx context.Context, card domain.Card) error

	// DeleteCard removes a card with its progress, reviews, shares and
	// hidden entries.
	DeleteCard(ctx context.Context, tenantID, cardID string) error

	// EnsureCategory returns the tenant's category with cat.Name, inserting
	// cat when there is none.
	EnsureCategory(ctx context.Context, cat domain.Category) (domain.Category, error)

	// GetShare returns nil when the card was never shared with the user.
	GetShare(ctx context.Context, cardID, userID string) (*domain.Share, error)
	UpsertShare(ctx context.Context, share domain.Share) error

	InsertDeck(ctx context.Context, deck domain.Deck) error
	GetDeck(ctx context.Context, tenantID, deckID string) (*domain.Deck, error)
	SetHidden(ctx context.Context, deckID, cardID string, hidden bool) error
}

// Options injects the clock and ID source. Zero values use time.Now and
// random UUIDs.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

// Library is the card authoring service.
type Library struct {
	store    Store
	now      func() time.Time
	newID    func() string
	validate *validator.Validate
	log      *zap.Logger
}

// New creates a Library.
func New(store Store, opts Options, log *zap.Logger) *Library {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Library{
		store:    store,
		now:      opts.Now,
		newID:    opts.NewID,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// NewCard is the input of CreateCard.
type NewCard struct {
	TenantID   string            `json:"-" validate:"required"`
	OwnerID    string            `json:"-" validate:"required"`
	CategoryID string            `json:"category_id" validate:"required"`
	Question   string            `json:"question" validate:"required"`
	Answer     string            `json:"answer" validate:"required"`
	Visibility domain.Visibility `json:"visibility" validate:"omitempty,oneof=private shared public"`
	Tags       []string          `json:"tags"`
	Difficulty int               `json:"difficulty" validate:"min=0,max=5"`
	SourceID   *int64            `json:"-"`
}

// CreateCard stores a new card. If the owner already has a card with the
// same fingerprint, that card is returned with ErrDuplicateCard.
func (l *Library) CreateCard(ctx context.Context, in NewCard) (domain.Card, error) {
	card, created, err := l.Import(ctx, in)
	if err != nil {
		return domain.Card{}, err
	}
	if !created {
		return card, ErrDuplicateCard
	}
	return card, nil
}

// Import is CreateCard for bulk callers: a duplicate is not an error, it is
// reported through created=false.
func (l *Library) Import(ctx context.Context, in NewCard) (card domain.Card, created bool, err error) {
	if err := l.validate.Struct(in); err != nil {
		return domain.Card{}, false, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	fp := fingerprint.Compute(in.Question, in.Answer)
	existing, err := l.store.FindByFingerprint(ctx, in.TenantID, in.OwnerID, fp)
	if err != nil {
		return domain.Card{}, false, fmt.Errorf("find by fingerprint: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}

	now := l.now()
	card = domain.Card{
		ID:          l.newID(),
		TenantID:    in.TenantID,
		CategoryID:  in.CategoryID,
		OwnerID:     in.OwnerID,
		Question:    in.Question,
		Answer:      in.Answer,
		Fingerprint: fp,
		Visibility:  in.Visibility,
		Tags:        in.Tags,
		Difficulty:  in.Difficulty,
		SourceID:    in.SourceID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if card.Visibility == "" {
		card.Visibility = domain.VisibilityPrivate
	}
	if err := l.store.InsertCard(ctx, card); err != nil {
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return domain.Card{}, false, fmt.Errorf("insert card: %w", err)
		}
		// Another writer stored the same card since the lookup above.
		existing, ferr := l.store.FindByFingerprint(ctx, in.TenantID, in.OwnerID, fp)
		if ferr != nil || existing == nil {
			return domain.Card{}, false, fmt.Errorf("insert card: %w", err)
		}
		return *existing, false, nil
	}

	l.log.Debug("card created",
		zap.String("card_id", card.ID),
		zap.String("owner_id", card.OwnerID),
		zap.String("fingerprint", fp),
	)
	return card, true, nil
}

func (l *Library) ownedCard(ctx context.Context, tenantID, userID, cardID string) (*domain.Card, error) {
	card, err := l.store.GetCard(ctx, tenantID, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card %s: %w", cardID, err)
	}
	if card.OwnerID != userID {
		return nil, fmt.Errorf("card %s: %w", cardID, errs.ErrForbidden)
	}
	return card, nil
}

// UpdateCard edits a card's text and recomputes its fingerprint. Editing
// into a duplicate of another owned card fails with ErrDuplicateCard.
func (l *Library) UpdateCard(ctx context.Context, tenantID, userID, cardID, question, answer string) (domain.Card, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return domain.Card{}, fmt.Errorf("%w: question and answer are required", errs.ErrInvalidInput)
	}
	card, err := l.ownedCard(ctx, tenantID, userID, cardID)
	if err != nil {
		return domain.Card{}, err
	}

	fp := fingerprint.Compute(question, answer)
	if fp != card.Fingerprint {
		other, err := l.store.FindByFingerprint(ctx, tenantID, userID, fp)
		if err != nil {
			return domain.Card{}, fmt.Errorf("find by fingerprint: %w", err)
		}
		if other != nil && other.ID != card.ID {
			return *other, ErrDuplicateCard
		}
	}

	card.Question = question
	card.Answer = answer
	card.Fingerprint = fp
	card.UpdatedAt = l.now()
	if err := l.store.UpdateCard(ctx, *card); err != nil {
		return domain.Card{}, fmt.Errorf("update card: %w", err)
	}
	return *card, nil
}

// CopySharedCard copies a public card, or one shared with the user, into
// the user's private collection. When the user already owns a card with
// the same fingerprint that card is returned instead.
func (l *Library) CopySharedCard(ctx context.Context, tenantID, userID, cardID string) (domain.Card, error) {
	src, err := l.store.GetCard(ctx, tenantID, cardID)
	if err != nil {
		return domain.Card{}, fmt.Errorf("get card %s: %w", cardID, err)
	}
	if src.OwnerID == userID {
		return *src, nil
	}
	if err := l.canSee(ctx, src, userID); err != nil {
		return domain.Card{}, err
	}

	copied, created, err := l.Import(ctx, NewCard{
		TenantID:   tenantID,
		OwnerID:    userID,
		CategoryID: src.CategoryID,
		Question:   src.Question,
		Answer:     src.Answer,
		Visibility: domain.VisibilityPrivate,
		Tags:       src.Tags,
		Difficulty: src.Difficulty,
	})
	if err != nil {
		return domain.Card{}, err
	}
	if created {
		l.log.Info("card copied",
			zap.String("from_card_id", src.ID),
			zap.String("card_id", copied.ID),
			zap.String("user_id", userID),
		)
	}
	return copied, nil
}

func (l *Library) canSee(ctx context.Context, card *domain.Card, userID string) error {
	if card.Visibility == domain.VisibilityPublic {
		return nil
	}
	share, err := l.store.GetShare(ctx, card.ID, userID)
	if err != nil {
		return fmt.Errorf("get share: %w", err)
	}
	if share == nil {
		return fmt.Errorf("card %s: %w", card.ID, errs.ErrForbidden)
	}
	return nil
}

// DeleteCard removes one of the user's cards and everything hanging off it.
func (l *Library) DeleteCard(ctx context.Context, tenantID, userID, cardID string) error {
	if _, err := l.ownedCard(ctx, tenantID, userID, cardID); err != nil {
		return err
	}
	if err := l.store.DeleteCard(ctx, tenantID, cardID); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	l.log.Info("card deleted", zap.String("card_id", cardID), zap.String("user_id", userID))
	return nil
}

// EnsureCategory returns the tenant's category called name, creating it
// if needed.
func (l *Library) EnsureCategory(ctx context.Context, tenantID, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return domain.Category{}, fmt.Errorf("%w: tenant and category name are required", errs.ErrInvalidInput)
	}
	cat, err := l.store.EnsureCategory(ctx, domain.Category{
		ID:        l.newID(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: l.now(),
	})
	if err != nil {
		return domain.Category{}, fmt.Errorf("ensure category %q: %w", name, err)
	}
	return cat, nil
}
