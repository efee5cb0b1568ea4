package storage

import (
	"context"
	"time"
)

// Event kinds in the rolling message_events log.
const (
	EventMessage = "message"
	EventPhoto   = "photo"
)

// IncrementDaily bumps the (chat, user, civil day) counter and returns the
// new value. The upsert keeps two near-simultaneous messages from ever
// reading the same count.
func (s *Store) IncrementDaily(ctx context.Context, chatID, userID int64, dayKey string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_counters (chat_id, user_id, day_key, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(chat_id, user_id, day_key) DO UPDATE SET count = count + 1
	`, chatID, userID, dayKey)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT count FROM daily_counters WHERE chat_id = ? AND user_id = ? AND day_key = ?
	`, chatID, userID, dayKey).Scan(&count)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) PurgeDailyCounters(ctx context.Context, beforeDayKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM daily_counters WHERE day_key < ?`, beforeDayKey)
	return err
}

func (s *Store) AddMessageEvent(ctx context.Context, chatID, userID int64, kind string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_events (chat_id, user_id, kind, created_at)
		VALUES (?, ?, ?, ?)
	`, chatID, userID, kind, at.Unix())
	return err
}

func (s *Store) CountMessageEvents(ctx context.Context, chatID, userID int64, kind string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_events
		WHERE chat_id = ? AND user_id = ? AND kind = ? AND created_at >= ?
	`, chatID, userID, kind, since.Unix()).Scan(&count)
	return count, err
}

func (s *Store) PurgeMessageEvents(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM message_events WHERE created_at < ?`, before.Unix())
	return err
}
