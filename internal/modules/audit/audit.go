package audit

import (
	"context"
	"time"

	"chatguard/internal/storage"

	"go.uber.org/zap"
)

// Recorder appends moderation actions to the durable audit log. Writes
// happen after the enforcement side effect: a row must never exist for an
// action that did not happen. Storage failures are logged and swallowed so
// a hiccup cannot un-apply an already-performed sanction.
type Recorder struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(store *storage.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// WithNow replaces the clock, for tests.
func (r *Recorder) WithNow(now func() time.Time) {
	r.now = now
}

func (r *Recorder) Record(ctx context.Context, chatID, userID int64, action, reason, meta string) {
	entry := storage.ModerationAction{
		ChatID:    chatID,
		UserID:    userID,
		Action:    action,
		Reason:    reason,
		Meta:      meta,
		CreatedAt: r.now(),
	}
	if err := r.store.AppendAction(ctx, entry); err != nil {
		r.logger.Error("audit append failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.String("action", action),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	r.logger.Info("audit",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.String("action", action),
		zap.String("reason", reason),
		zap.String("meta", meta))
}
