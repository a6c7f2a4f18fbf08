// Package sm2 implements the SuperMemo-2 review interval engine.
//
// A card is either failed/learning (Repetitions == 0) or reviewing
// (Repetitions >= 1, interval growing geometrically with the ease factor).
// All functions are pure; the caller supplies the current time.
package sm2

import (
	"math"
	"time"

	"github.com/conorfennell/skillcards/internal/domain"
)

const (
	// MinEaseFactor is the floor applied after every successful review.
	MinEaseFactor = 1.3

	// DefaultEaseFactor is used when the state carries no ease factor.
	DefaultEaseFactor = domain.DefaultEaseFactor

	// FirstIntervalDays and SecondIntervalDays are the fixed intervals of
	// the first two successful repetitions.
	FirstIntervalDays  = 1
	SecondIntervalDays = 6
)

// State is the part of a progress record the engine reads.
// A zero EaseFactor means "not set" and is replaced by DefaultEaseFactor.
type State struct {
	Repetitions  int
	IntervalDays int
	EaseFactor   float64
}

// StateOf extracts the engine state from a progress record. A nil record
// yields the initial state.
func StateOf(p *domain.Progress) State {
	if p == nil {
		return State{}
	}
	return State{
		Repetitions:  p.Repetitions,
		IntervalDays: p.IntervalDays,
		EaseFactor:   p.EaseFactor,
	}
}

// Update is the result of applying one review.
// NextReviewAt is nil after a failed review: the card is due again at once.
type Update struct {
	Repetitions  int
	IntervalDays int
	EaseFactor   float64
	NextReviewAt *time.Time
}

// Apply copies the update onto a progress record.
func (u Update) Apply(p *domain.Progress) {
	p.Repetitions = u.Repetitions
	p.IntervalDays = u.IntervalDays
	p.EaseFactor = u.EaseFactor
	p.NextReviewAt = u.NextReviewAt
}

// Next computes the state after a review of quality q at time now.
//
// q must be in 0..5; Next does not check it. Use ParseQuality or
// FeedbackQuality at the boundary.
func Next(state State, q Quality, now time.Time) Update {
	ease := state.EaseFactor
	if ease == 0 {
		ease = DefaultEaseFactor
	}

	if q < QualityPass {
		return Update{
			Repetitions:  0,
			IntervalDays: 0,
			EaseFactor:   ease,
			NextReviewAt: nil,
		}
	}

	reps := state.Repetitions + 1
	var interval int
	switch reps {
	case 1:
		interval = FirstIntervalDays
	case 2:
		interval = SecondIntervalDays
	default:
		interval = int(math.Round(float64(state.IntervalDays) * ease))
	}

	next := dueDate(now, interval)
	return Update{
		Repetitions:  reps,
		IntervalDays: interval,
		EaseFactor:   nextEase(ease, q),
		NextReviewAt: &next,
	}
}

// nextEase applies EF' = EF + (0.1 - (5-q) * (0.08 + (5-q)*0.02)), floored.
func nextEase(ease float64, q Quality) float64 {
	d := float64(QualityPerfect - q)
	ease += 0.1 - d*(0.08+d*0.02)
	return math.Max(MinEaseFactor, ease)
}

// dueDate returns midnight, in now's location, intervalDays after now.
func dueDate(now time.Time, intervalDays int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+intervalDays, 0, 0, 0, 0, now.Location())
}

// IsDue reports whether the card should be shown at now. Cards that were
// never reviewed, or that failed their last review, are always due.
func IsDue(p *domain.Progress, now time.Time) bool {
	if p == nil || p.NextReviewAt == nil {
		return true
	}
	return !p.NextReviewAt.After(now)
}

// OverdueDays returns how many days past due the card is. Cards without a
// scheduled date report +Inf so they sort ahead of everything else.
func OverdueDays(p *domain.Progress, now time.Time) float64 {
	if p == nil || p.NextReviewAt == nil {
		return math.Inf(1)
	}
	if now.Before(*p.NextReviewAt) {
		return 0
	}
	return now.Sub(*p.NextReviewAt).Hours() / 24.0
}
