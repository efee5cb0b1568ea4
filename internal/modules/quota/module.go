package quota

import (
	"context"
	"fmt"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

const photoWindow = time.Hour

// Module holds the three quota checks: daily message count, rolling-hour
// photo count and maximum text length. All of them fail open on storage
// errors; none of them uses the strike ladder.
type Module struct {
	store    *storage.Store
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	muteFor  time.Duration
	now      func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger, muteMinutes int) *Module {
	return &Module{
		store:    store,
		enforcer: enforcer,
		logger:   logger,
		muteFor:  time.Duration(muteMinutes) * time.Minute,
		now:      time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (m *Module) WithNow(now func() time.Time) { m.now = now }

// HandleLength deletes over-length messages. Zero ceiling disables.
func (m *Module) HandleLength(ctx context.Context, msg *platform.Message, maxLength int, meta string) bool {
	if maxLength <= 0 {
		return false
	}
	length := len([]rune(msg.CombinedText()))
	if length <= maxLength {
		return false
	}
	meta = fmt.Sprintf("%s length=%d max=%d", meta, length, maxLength)
	if m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonLength, meta) {
		m.enforcer.Warn(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonLength, meta, "")
	}
	return true
}

// HandleDaily counts the message against the (chat, user, civil day) quota.
// The day key is computed in the chat's timezone so the quota resets at the
// chat's local midnight, not UTC's.
func (m *Module) HandleDaily(ctx context.Context, msg *platform.Message, limit int, loc *time.Location, meta string) bool {
	if limit <= 0 {
		return false
	}
	dayKey := m.now().In(loc).Format("2006-01-02")
	count, err := m.store.IncrementDaily(ctx, msg.ChatID, msg.Sender.ID, dayKey)
	if err != nil {
		m.logger.Warn("daily counter failed, failing open",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		return false
	}
	if count <= limit {
		return false
	}
	meta = fmt.Sprintf("%s count=%d limit=%d day=%s", meta, count, limit, dayKey)
	if m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonQuota, meta) {
		m.enforcer.Notice(ctx, msg.ChatID,
			fmt.Sprintf("%s, you reached today's message limit (%d).", msg.Sender.DisplayName, limit))
	}
	return true
}

// HandlePhoto checks the rolling one-hour photo count. The first violation
// in the window warns; the third and later escalate to a timed mute, which
// feeds the repeated-mute auto-removal.
func (m *Module) HandlePhoto(ctx context.Context, msg *platform.Message, limit int, meta string) bool {
	if limit <= 0 || !msg.HasPhoto() {
		return false
	}
	count, err := m.store.CountMessageEvents(ctx, msg.ChatID, msg.Sender.ID,
		storage.EventPhoto, m.now().Add(-photoWindow))
	if err != nil {
		m.logger.Warn("photo count failed, failing open",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		return false
	}
	violations := count - limit
	if violations <= 0 {
		return false
	}
	meta = fmt.Sprintf("%s count=%d limit=%d", meta, count, limit)
	if !m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonPhoto, meta) {
		return true
	}
	switch {
	case violations == 1:
		m.enforcer.Warn(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonPhoto, meta,
			fmt.Sprintf("%s, too many photos this hour.", msg.Sender.DisplayName))
	case violations >= 3:
		m.enforcer.Mute(ctx, msg.ChatID, msg.Sender.ID, m.muteFor, storage.ReasonPhoto, meta)
	}
	return true
}
