package storage

import (
	"context"
	"time"
)

// PendingRejoin schedules re-adding a temporarily removed user.
type PendingRejoin struct {
	ID       int64
	ChatID   int64
	UserID   int64
	Due      time.Time
	Attempts int
}

// PendingDelete schedules removal of a bot-sent notice message.
type PendingDelete struct {
	ID        int64
	ChatID    int64
	MessageID string
	Due       time.Time
	Attempts  int
}

func (s *Store) EnqueueRejoin(ctx context.Context, chatID, userID int64, due, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_rejoins (chat_id, user_id, due_ts, attempts, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, chatID, userID, due.Unix(), now.Unix())
	return err
}

func (s *Store) DueRejoins(ctx context.Context, now time.Time, limit int) ([]PendingRejoin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, due_ts, attempts
		FROM pending_rejoins WHERE due_ts <= ? ORDER BY due_ts LIMIT ?
	`, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PendingRejoin
	for rows.Next() {
		var item PendingRejoin
		var due int64
		if err := rows.Scan(&item.ID, &item.ChatID, &item.UserID, &due, &item.Attempts); err != nil {
			return nil, err
		}
		item.Due = time.Unix(due, 0)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) DeleteRejoin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_rejoins WHERE id = ?`, id)
	return err
}

func (s *Store) PostponeRejoin(ctx context.Context, id int64, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_rejoins SET due_ts = ?, attempts = attempts + 1 WHERE id = ?
	`, until.Unix(), id)
	return err
}

func (s *Store) EnqueueDelete(ctx context.Context, chatID int64, messageID string, due, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_deletes (chat_id, message_id, due_ts, attempts, created_at)
		VALUES (?, ?, ?, 0, ?)
	`, chatID, messageID, due.Unix(), now.Unix())
	return err
}

func (s *Store) DueDeletes(ctx context.Context, now time.Time, limit int) ([]PendingDelete, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, message_id, due_ts, attempts
		FROM pending_deletes WHERE due_ts <= ? ORDER BY due_ts LIMIT ?
	`, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PendingDelete
	for rows.Next() {
		var item PendingDelete
		var due int64
		if err := rows.Scan(&item.ID, &item.ChatID, &item.MessageID, &due, &item.Attempts); err != nil {
			return nil, err
		}
		item.Due = time.Unix(due, 0)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) DeletePendingDelete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE id = ?`, id)
	return err
}

func (s *Store) PostponeDelete(ctx context.Context, id int64, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_deletes SET due_ts = ?, attempts = attempts + 1 WHERE id = ?
	`, until.Unix(), id)
	return err
}

// PurgeQueues drops delayed actions that have sat unprocessed past the
// retention ceiling, whatever their due time.
func (s *Store) PurgeQueues(ctx context.Context, createdBefore time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_rejoins WHERE created_at < ?`, createdBefore.Unix()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE created_at < ?`, createdBefore.Unix())
	return err
}
