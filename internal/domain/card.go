package domain

import "time"

// Visibility controls who besides the owner may study a card.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// Card represents a single question-answer pair in a category.
type Card struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	CategoryID  string     `json:"category_id"`
	OwnerID     string     `json:"owner_id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	Fingerprint string     `json:"fingerprint"`
	Visibility  Visibility `json:"visibility"`
	Tags        []string   `json:"tags,omitempty"`
	Difficulty  int        `json:"difficulty"`
	SourceID    *int64     `json:"source_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Category groups cards and carries the priority settings.
type Category struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Deck is a user's view over a set of categories. Cards can be hidden
// from a deck without touching the card itself.
type Deck struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	CategoryIDs []string  `json:"category_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// Share records a card offered to another user.
type Share struct {
	CardID   string `json:"card_id"`
	UserID   string `json:"user_id"`
	Accepted bool   `json:"accepted"`
}
