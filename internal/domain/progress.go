package domain

import "time"

// DefaultEaseFactor is the ease factor of a card that has never been reviewed.
const DefaultEaseFactor = 2.5

// Progress is the spaced-repetition state of one card for one user.
// A nil NextReviewAt means the card is due immediately.
type Progress struct {
	UserID         string     `json:"user_id"`
	CardID         string     `json:"card_id"`
	Repetitions    int        `json:"repetitions"`
	IntervalDays   int        `json:"interval_days"`
	EaseFactor     float64    `json:"ease_factor"`
	NextReviewAt   *time.Time `json:"next_review_at"`
	ExposureCount  int        `json:"exposure_count"`
	MasteryScore   float64    `json:"mastery_score"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewProgress returns the initial state used when a card is reviewed for
// the first time.
func NewProgress(userID, cardID string) Progress {
	return Progress{
		UserID:     userID,
		CardID:     cardID,
		EaseFactor: DefaultEaseFactor,
	}
}

// Feedback is the user-facing answer to "how well did you know this?".
type Feedback string

const (
	FeedbackNeedsReview Feedback = "needs_review"
	FeedbackGotIt       Feedback = "got_it"
	FeedbackMastered    Feedback = "mastered"
)

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	UserID     string    `json:"user_id"`
	CardID     string    `json:"card_id"`
	Quality    int       `json:"quality"`
	ReviewedAt time.Time `json:"reviewed_at"`
}
