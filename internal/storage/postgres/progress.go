package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/conorfennell/skillcards/internal/domain"
)

const progressColumns = `user_id, card_id, repetitions, interval_days, ease_factor, next_review_at,
	exposure_count, mastery_score, last_reviewed_at, updated_at`

func scanProgress(row pgx.Row) (*domain.Progress, error) {
	var p domain.Progress
	err := row.Scan(&p.UserID, &p.CardID, &p.Repetitions, &p.IntervalDays, &p.EaseFactor, &p.NextReviewAt,
		&p.ExposureCount, &p.MasteryScore, &p.LastReviewedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProgressForUser returns every progress record of a user keyed by card ID.
func (db *DB) ProgressForUser(ctx context.Context, userID string) (map[string]*domain.Progress, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+progressColumns+` FROM card_progress WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("load progress of user %s: %w", userID, err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Progress)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out[p.CardID] = p
	}
	return out, rows.Err()
}

// GetProgress returns the user's record for a card, or nil.
func (db *DB) GetProgress(ctx context.Context, userID, cardID string) (*domain.Progress, error) {
	p, err := scanProgress(db.Pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM card_progress WHERE user_id=$1 AND card_id=$2`, userID, cardID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress of card %s: %w", cardID, err)
	}
	return p, nil
}

// RecordReview appends the review and writes the updated progress in one
// transaction.
func (db *DB) RecordReview(ctx context.Context, r domain.ReviewLog, p domain.Progress) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO review_logs (user_id, card_id, quality, reviewed_at) VALUES ($1, $2, $3, $4)`,
			r.UserID, r.CardID, r.Quality, r.ReviewedAt); err != nil {
			return fmt.Errorf("append review of card %s: %w", r.CardID, err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO card_progress (`+progressColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, card_id) DO UPDATE SET
				repetitions=EXCLUDED.repetitions,
				interval_days=EXCLUDED.interval_days,
				ease_factor=EXCLUDED.ease_factor,
				next_review_at=EXCLUDED.next_review_at,
				exposure_count=EXCLUDED.exposure_count,
				mastery_score=EXCLUDED.mastery_score,
				last_reviewed_at=EXCLUDED.last_reviewed_at,
				updated_at=EXCLUDED.updated_at`,
			p.UserID, p.CardID, p.Repetitions, p.IntervalDays, p.EaseFactor, p.NextReviewAt,
			p.ExposureCount, p.MasteryScore, p.LastReviewedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert progress of card %s: %w", p.CardID, err)
		}
		return nil
	})
}

// RecentReviews returns up to limit reviews of a card, newest first.
func (db *DB) RecentReviews(ctx context.Context, userID, cardID string, limit int) ([]domain.ReviewLog, error) {
	rows, err := db.Pool.Query(ctx, `SELECT user_id, card_id, quality, reviewed_at FROM review_logs
		WHERE user_id=$1 AND card_id=$2 ORDER BY id DESC LIMIT $3`, userID, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("load reviews of card %s: %w", cardID, err)
	}
	defer rows.Close()

	var out []domain.ReviewLog
	for rows.Next() {
		var r domain.ReviewLog
		if err := rows.Scan(&r.UserID, &r.CardID, &r.Quality, &r.ReviewedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
