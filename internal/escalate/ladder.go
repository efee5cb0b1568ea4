package escalate

import (
	"context"
	"fmt"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

// Ladder is the shared 3-level sanction ladder fed by flood/spam strikes:
// warn, then a timed mute, then removal with block. The strike count lives
// in storage and decays after the configured window.
type Ladder struct {
	store    *storage.Store
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	decay    time.Duration
	muteFor  time.Duration
	now      func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger, decayHours, muteMinutes int) *Ladder {
	return &Ladder{
		store:    store,
		enforcer: enforcer,
		logger:   logger,
		decay:    time.Duration(decayHours) * time.Hour,
		muteFor:  time.Duration(muteMinutes) * time.Minute,
		now:      time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (l *Ladder) WithNow(now func() time.Time) { l.now = now }

// Advance records one strike and applies the sanction for the resulting
// level. Strike bookkeeping errors fail open: the violation was already
// handled by a delete, so an infra hiccup must not block the pipeline.
func (l *Ladder) Advance(ctx context.Context, chatID, userID int64, displayName, reason, meta string) {
	level, err := l.store.IncrementStrike(ctx, chatID, userID, l.decay, l.now())
	if err != nil {
		l.logger.Warn("strike increment failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	meta = fmt.Sprintf("%s strike=%d", meta, level)

	switch level {
	case 1:
		l.enforcer.Warn(ctx, chatID, userID, reason, meta,
			fmt.Sprintf("%s, slow down. This is a warning.", displayName))
	case 2:
		l.enforcer.Mute(ctx, chatID, userID, l.muteFor, reason, meta)
		l.enforcer.Notice(ctx, chatID,
			fmt.Sprintf("%s is muted for %s for flooding.", displayName, enforce.MuteText(l.muteFor)))
	default:
		l.enforcer.RemoveOrSoftBan(ctx, chatID, userID, reason, meta)
	}
}
