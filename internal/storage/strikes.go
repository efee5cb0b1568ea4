package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const maxStrikes = 3

// IncrementStrike advances the flood ladder for (chat, user) and returns
// the new level. The count restarts at 1 when the previous violation is
// older than the decay window, and never exceeds 3.
func (s *Store) IncrementStrike(ctx context.Context, chatID, userID int64, decay time.Duration, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	var first, last int64
	row := tx.QueryRowContext(ctx, `
		SELECT strike_count, first_violation_ts, last_violation_ts
		FROM strikes WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	scanErr := row.Scan(&count, &first, &last)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}

	firstTS := now.Unix()
	switch {
	case errors.Is(scanErr, sql.ErrNoRows):
		count = 1
	case now.Sub(time.Unix(last, 0)) > decay:
		count = 1
	default:
		firstTS = first
		if count < maxStrikes {
			count++
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO strikes (chat_id, user_id, strike_count, first_violation_ts, last_violation_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			strike_count = excluded.strike_count,
			first_violation_ts = excluded.first_violation_ts,
			last_violation_ts = excluded.last_violation_ts
	`, chatID, userID, count, firstTS, now.Unix())
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) PurgeStrikes(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM strikes WHERE last_violation_ts < ?`, before.Unix())
	return err
}
