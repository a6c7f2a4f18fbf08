package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/skillcards/internal/domain"
)

const progressColumns = `user_id, card_id, repetitions, interval_days, ease_factor, next_review_at,
	exposure_count, mastery_score, last_reviewed_at, updated_at`

func scanProgress(s scanner) (*domain.Progress, error) {
	var (
		p            domain.Progress
		next, review sql.NullTime
	)
	err := s.Scan(&p.UserID, &p.CardID, &p.Repetitions, &p.IntervalDays, &p.EaseFactor, &next,
		&p.ExposureCount, &p.MasteryScore, &review, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.NextReviewAt = nullTime(next)
	p.LastReviewedAt = nullTime(review)
	return &p, nil
}

// ProgressForUser returns every progress record of a user keyed by card ID.
func (db *DB) ProgressForUser(ctx context.Context, userID string) (map[string]*domain.Progress, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+progressColumns+` FROM card_progress WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress of user %s: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Progress)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		out[p.CardID] = p
	}
	return out, rows.Err()
}

// GetProgress returns the user's record for a card, or nil if the card was
// never reviewed.
func (db *DB) GetProgress(ctx context.Context, userID, cardID string) (*domain.Progress, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+progressColumns+` FROM card_progress WHERE user_id = ? AND card_id = ?
	`, userID, cardID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress of card %s: %w", cardID, err)
	}
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RecordReview appends the review and writes the updated progress in one
// transaction.
func (db *DB) RecordReview(ctx context.Context, r domain.ReviewLog, p domain.Progress) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := appendReview(ctx, tx, r); err != nil {
			return err
		}
		return upsertProgress(ctx, tx, p)
	})
}

// upsertProgress writes a record in a single statement keyed by
// (user_id, card_id).
func upsertProgress(ctx context.Context, ex execer, p domain.Progress) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO card_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, card_id) DO UPDATE SET
			repetitions = excluded.repetitions,
			interval_days = excluded.interval_days,
			ease_factor = excluded.ease_factor,
			next_review_at = excluded.next_review_at,
			exposure_count = excluded.exposure_count,
			mastery_score = excluded.mastery_score,
			last_reviewed_at = excluded.last_reviewed_at,
			updated_at = excluded.updated_at
	`,
		p.UserID, p.CardID, p.Repetitions, p.IntervalDays, p.EaseFactor, p.NextReviewAt,
		p.ExposureCount, p.MasteryScore, p.LastReviewedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress of card %s: %w", p.CardID, err)
	}
	return nil
}

func appendReview(ctx context.Context, ex execer, r domain.ReviewLog) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO review_logs (user_id, card_id, quality, reviewed_at) VALUES (?, ?, ?, ?)
	`, r.UserID, r.CardID, r.Quality, r.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to append review of card %s: %w", r.CardID, err)
	}
	return nil
}

// RecentReviews returns up to limit reviews of a card, newest first.
func (db *DB) RecentReviews(ctx context.Context, userID, cardID string, limit int) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, card_id, quality, reviewed_at FROM review_logs
		WHERE user_id = ? AND card_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews of card %s: %w", cardID, err)
	}
	defer rows.Close()

	var out []domain.ReviewLog
	for rows.Next() {
		var r domain.ReviewLog
		if err := rows.Scan(&r.UserID, &r.CardID, &r.Quality, &r.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
