package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	RestrictionMute        = "mute"
	RestrictionBanFallback = "ban_fallback"
)

// ActiveRestriction is one live sanction on a (chat, user). At most one row
// exists per restriction type; a newer "until" replaces the old one.
type ActiveRestriction struct {
	ChatID    int64
	UserID    int64
	Type      string
	Until     time.Time
	CreatedAt time.Time
}

func (s *Store) UpsertRestriction(ctx context.Context, r ActiveRestriction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO active_restrictions (chat_id, user_id, type, until_ts, created_at_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id, type) DO UPDATE SET
			until_ts = MAX(until_ts, excluded.until_ts),
			created_at_ts = excluded.created_at_ts
	`, r.ChatID, r.UserID, r.Type, r.Until.Unix(), r.CreatedAt.Unix())
	return err
}

// GetRestriction returns the user's active restriction in the chat, if any.
// Mute takes precedence over a ban fallback when both exist.
func (s *Store) GetRestriction(ctx context.Context, chatID, userID int64, now time.Time) (ActiveRestriction, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chat_id, user_id, type, until_ts, created_at_ts
		FROM active_restrictions
		WHERE chat_id = ? AND user_id = ? AND until_ts > ?
		ORDER BY CASE type WHEN ? THEN 0 ELSE 1 END
		LIMIT 1
	`, chatID, userID, now.Unix(), RestrictionMute)

	var r ActiveRestriction
	var until, created int64
	err := row.Scan(&r.ChatID, &r.UserID, &r.Type, &until, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ActiveRestriction{}, false, nil
		}
		return ActiveRestriction{}, false, err
	}
	r.Until = time.Unix(until, 0)
	r.CreatedAt = time.Unix(created, 0)
	return r, true, nil
}

func (s *Store) RemoveRestriction(ctx context.Context, chatID, userID int64, restrictionType string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM active_restrictions WHERE chat_id = ? AND user_id = ? AND type = ?
	`, chatID, userID, restrictionType)
	return err
}

func (s *Store) PurgeExpiredRestrictions(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM active_restrictions WHERE until_ts <= ?`, now.Unix())
	return err
}
