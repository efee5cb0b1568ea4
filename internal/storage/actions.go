package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Enforcement actions as recorded in the moderation log. Escalation levels
// are always recomputed by counting these rows, never stored separately.
const (
	ActionDelete      = "delete"
	ActionWarn        = "warn"
	ActionMute        = "mute"
	ActionKick        = "kick"
	ActionKickTemp    = "kick_temp"
	ActionKickAuto    = "kick_auto"
	ActionBan         = "ban"
	ActionBanFallback = "ban_fallback"
	ActionNotice      = "notice"
)

const (
	ReasonLink       = "link"
	ReasonDuplicate  = "duplicate"
	ReasonAntiBot    = "antibot"
	ReasonSpam       = "spam"
	ReasonQuota      = "quota"
	ReasonPhoto      = "photo"
	ReasonLength     = "length"
	ReasonNight      = "night"
	ReasonMuteActive = "mute_active"
	ReasonRestricted = "restricted"
	ReasonEvasion    = "mute_evasion"
	ReasonDoubleMute = "double_mute"
	ReasonGlobal     = "global_spammer"
)

// ModerationAction is one immutable row of the append-only audit log.
type ModerationAction struct {
	ID        int64
	ChatID    int64
	UserID    int64
	Action    string
	Reason    string
	Meta      string
	CreatedAt time.Time
}

func (s *Store) AppendAction(ctx context.Context, action ModerationAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_actions (chat_id, user_id, action, reason, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, action.ChatID, action.UserID, action.Action, action.Reason, action.Meta, action.CreatedAt.Unix())
	return err
}

// CountActions counts audit rows for a user in one chat since the given
// time. Empty actions/reasons slices mean "any".
func (s *Store) CountActions(ctx context.Context, chatID, userID int64, actions, reasons []string, since time.Time) (int, error) {
	query, args := actionCountQuery("chat_id = ? AND user_id = ?", []any{chatID, userID}, actions, reasons, since)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountActionsAllChats is CountActions without the chat filter; the global
// cross-chat spammer gate reads through it.
func (s *Store) CountActionsAllChats(ctx context.Context, userID int64, actions, reasons []string, since time.Time) (int, error) {
	query, args := actionCountQuery("user_id = ?", []any{userID}, actions, reasons, since)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListActionTimes returns creation times (newest first) of matching rows.
func (s *Store) ListActionTimes(ctx context.Context, chatID, userID int64, action string, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at FROM moderation_actions
		WHERE chat_id = ? AND user_id = ? AND action = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, chatID, userID, action, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		times = append(times, time.Unix(ts, 0))
	}
	return times, rows.Err()
}

func (s *Store) PurgeActions(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM moderation_actions WHERE created_at < ?`, before.Unix())
	return err
}

func actionCountQuery(scope string, scopeArgs []any, actions, reasons []string, since time.Time) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM moderation_actions WHERE ")
	sb.WriteString(scope)
	args := scopeArgs

	if len(actions) > 0 {
		fmt.Fprintf(&sb, " AND action IN (%s)", placeholders(len(actions)))
		for _, a := range actions {
			args = append(args, a)
		}
	}
	if len(reasons) > 0 {
		fmt.Fprintf(&sb, " AND reason IN (%s)", placeholders(len(reasons)))
		for _, r := range reasons {
			args = append(args, r)
		}
	}
	sb.WriteString(" AND created_at >= ?")
	args = append(args, since.Unix())
	return sb.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
