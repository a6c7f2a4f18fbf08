package study

import (
	"context"

	"github.com/conorfennell/skillcards/internal/domain"
)

// Scope selects the card pool of a study session. An empty DeckID means
// every card the user can see in the tenant.
type Scope struct {
	TenantID string `validate:"required"`
	UserID   string `validate:"required"`
	DeckID   string
}

// CardStore reads the card pool.
type CardStore interface {
	// CandidateCards returns cards the user owns, accepted shares and public
	// cards in the tenant, limited to the deck's categories when set.
	CandidateCards(ctx context.Context, scope Scope) ([]domain.Card, error)

	// HiddenCards returns the IDs hidden in a deck.
	HiddenCards(ctx context.Context, deckID string) (map[string]bool, error)

	// Categories returns all categories of a tenant.
	Categories(ctx context.Context, tenantID string) ([]domain.Category, error)

	// GetCard returns a card, or errs.ErrNotFound.
	GetCard(ctx context.Context, tenantID, cardID string) (*domain.Card, error)

	// GetShare returns nil when the card was never shared with the user.
	GetShare(ctx context.Context, cardID, userID string) (*domain.Share, error)
}

// ProgressStore reads and writes per-user review state.
type ProgressStore interface {
	// ProgressForUser returns every progress record of a user keyed by card ID.
	ProgressForUser(ctx context.Context, userID string) (map[string]*domain.Progress, error)

	// GetProgress returns the record, or nil when the card was never reviewed.
	GetProgress(ctx context.Context, userID, cardID string) (*domain.Progress, error)

	// RecordReview appends the review event and upserts the progress record
	// keyed by (user, card) in one transaction. Neither is written when
	// either fails.
	RecordReview(ctx context.Context, r domain.ReviewLog, p domain.Progress) error

	// RecentReviews returns up to limit reviews, newest first.
	RecentReviews(ctx context.Context, userID, cardID string, limit int) ([]domain.ReviewLog, error)
}

// PriorityStore holds admin and user category priorities and the tenant
// override mode.
type PriorityStore interface {
	AdminPriorities(ctx context.Context, tenantID string) (map[string]int, error)
	UserPriorities(ctx context.Context, tenantID, userID string) (map[string]int, error)

	// OverrideMode returns the stored mode, or "" when none is set.
	OverrideMode(ctx context.Context, tenantID string) (string, error)

	SetAdminPriority(ctx context.Context, tenantID, categoryID string, level int) error
	SetUserPriority(ctx context.Context, tenantID, userID, categoryID string, level int) error
	DeleteUserPriority(ctx context.Context, tenantID, userID, categoryID string) error
	SetOverrideMode(ctx context.Context, tenantID, mode string) error
}
