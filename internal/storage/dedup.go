package storage

import (
	"context"
	"time"
)

// MarkProcessed records (chat, message) in the durable dedup table and
// reports whether this call inserted the row. False means the message was
// already processed, possibly by a previous incarnation of the process.
func (s *Store) MarkProcessed(ctx context.Context, chatID int64, messageID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_messages (chat_id, message_id, processed_at)
		VALUES (?, ?, ?)
	`, chatID, messageID, now.Unix())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) PurgeProcessed(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE processed_at < ?`, before.Unix())
	return err
}
