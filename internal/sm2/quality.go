package sm2

import (
	"errors"
	"fmt"

	"github.com/conorfennell/skillcards/internal/domain"
)

// Quality is the recall grade of a review, 0 (blackout) to 5 (perfect).
type Quality int

const (
	QualityBlackout Quality = 0
	QualityWrong    Quality = 1
	QualityFamiliar Quality = 2
	QualityPass     Quality = 3
	QualityHesitant Quality = 4
	QualityPerfect  Quality = 5

	// QualityGotIt names the grade a "got it" answer was once meant to
	// carry. The feedback table below maps got_it to QualityHesitant (4) so
	// that only "mastered" earns a perfect grade; callers use the table.
	QualityGotIt = QualityPerfect
)

var (
	// ErrQualityOutOfRange is returned for grades outside 0..5.
	ErrQualityOutOfRange = errors.New("quality out of range")

	// ErrUnknownFeedback is returned for feedback strings not in the table.
	ErrUnknownFeedback = errors.New("unknown feedback")
)

var feedbackQuality = map[domain.Feedback]Quality{
	domain.FeedbackNeedsReview: QualityFamiliar,
	domain.FeedbackGotIt:       QualityHesitant,
	domain.FeedbackMastered:    QualityPerfect,
}

// Valid reports whether q is in 0..5.
func (q Quality) Valid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// ParseQuality checks an integer grade coming from outside the engine.
func ParseQuality(v int) (Quality, error) {
	q := Quality(v)
	if !q.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrQualityOutOfRange, v)
	}
	return q, nil
}

// FeedbackQuality maps user-facing feedback to a grade.
func FeedbackQuality(f domain.Feedback) (Quality, error) {
	q, ok := feedbackQuality[f]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeedback, f)
	}
	return q, nil
}
