package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatguard/internal/modules/audit"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

const (
	deleteAttempts = 3
	retryDelay     = 200 * time.Millisecond
	noticeLifetime = 5 * time.Minute
)

// Enforcer applies sanctions through the platform client and pairs every
// performed side effect with exactly one audit row, written afterwards.
type Enforcer struct {
	client       platform.Client
	store        *storage.Store
	audit        *audit.Recorder
	logger       *zap.Logger
	softBanHours int
	dblMuteWin   time.Duration
	now          func() time.Time
	sleep        func(time.Duration)
}

func New(client platform.Client, store *storage.Store, recorder *audit.Recorder, logger *zap.Logger, softBanHours, doubleMuteHours int) *Enforcer {
	return &Enforcer{
		client:       client,
		store:        store,
		audit:        recorder,
		logger:       logger,
		softBanHours: softBanHours,
		dblMuteWin:   time.Duration(doubleMuteHours) * time.Hour,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// WithNow replaces the clock, for tests.
func (e *Enforcer) WithNow(now func() time.Time) { e.now = now }

// WithSleep replaces the retry delay, for tests.
func (e *Enforcer) WithSleep(sleep func(time.Duration)) { e.sleep = sleep }

// Delete removes a message, treating "not found" as success. Transient
// failures are retried a bounded number of times; a final failure is only
// logged. Returns whether the message is gone.
func (e *Enforcer) Delete(ctx context.Context, chatID, userID int64, messageID, reason, meta string) bool {
	var err error
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(retryDelay)
		}
		err = e.client.DeleteMessage(ctx, chatID, messageID)
		if err == nil || errors.Is(err, platform.ErrNotFound) {
			e.audit.Record(ctx, chatID, userID, storage.ActionDelete, reason, meta)
			return true
		}
	}
	e.logger.Warn("message delete failed",
		zap.Int64("chat_id", chatID),
		zap.String("message_id", messageID),
		zap.String("reason", reason),
		zap.Error(err))
	return false
}

// Notice posts a best-effort chat message and schedules its auto-deletion
// through the durable queue. Never returns an error.
func (e *Enforcer) Notice(ctx context.Context, chatID int64, text string) {
	messageID, err := e.client.SendNotice(ctx, chatID, text)
	if err != nil {
		e.logger.Warn("notice failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	now := e.now()
	if err := e.store.EnqueueDelete(ctx, chatID, messageID, now.Add(noticeLifetime), now); err != nil {
		e.logger.Warn("notice cleanup enqueue failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Warn records a warning and tells the chat about it.
func (e *Enforcer) Warn(ctx context.Context, chatID, userID int64, reason, meta, text string) {
	e.audit.Record(ctx, chatID, userID, storage.ActionWarn, reason, meta)
	if text != "" {
		e.Notice(ctx, chatID, text)
	}
}

// Mute persists a timed restriction and records it, then applies the
// cross-cutting rule: a second mute for the user within the rolling window
// upgrades to a permanent removal, exactly once per window.
func (e *Enforcer) Mute(ctx context.Context, chatID, userID int64, duration time.Duration, reason, meta string) {
	now := e.now()
	restriction := storage.ActiveRestriction{
		ChatID:    chatID,
		UserID:    userID,
		Type:      storage.RestrictionMute,
		Until:     now.Add(duration),
		CreatedAt: now,
	}
	if err := e.store.UpsertRestriction(ctx, restriction); err != nil {
		e.logger.Error("mute restriction write failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	e.audit.Record(ctx, chatID, userID, storage.ActionMute, reason, meta)
	e.checkDoubleMute(ctx, chatID, userID, meta)
}

func (e *Enforcer) checkDoubleMute(ctx context.Context, chatID, userID int64, meta string) {
	now := e.now()
	times, err := e.store.ListActionTimes(ctx, chatID, userID, storage.ActionMute, now.Add(-e.dblMuteWin))
	if err != nil {
		e.logger.Warn("double-mute lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(times) < 2 {
		return
	}
	// times are newest first; the second mute anchors the trigger window.
	// A kick_auto at or after that anchor means this window already fired.
	anchor := times[1]
	fired, err := e.store.CountActions(ctx, chatID, userID,
		[]string{storage.ActionKickAuto}, nil, anchor)
	if err != nil {
		e.logger.Warn("double-mute lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if fired > 0 {
		return
	}
	e.Remove(ctx, chatID, userID, true, storage.ActionKickAuto, storage.ReasonDoubleMute, meta)
}

// Remove kicks the user. A malformed-request response from the primary call
// is retried once through the direct members endpoint with the same
// parameters. Returns whether the removal went through.
func (e *Enforcer) Remove(ctx context.Context, chatID, userID int64, block bool, action, reason, meta string) bool {
	err := e.client.RemoveMember(ctx, chatID, userID, block)
	if errors.Is(err, platform.ErrBadRequest) {
		e.logger.Info("kick fell back to direct call",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
		err = e.client.RemoveMemberDirect(ctx, chatID, userID, block)
	}
	if err != nil {
		e.logger.Warn("member removal failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.String("action", action),
			zap.Error(err))
		return false
	}
	e.audit.Record(ctx, chatID, userID, action, reason, meta)
	return true
}

// RemoveOrSoftBan is the ladder's terminal step: when the removal call
// fails, a persisted soft ban keeps deleting the user's messages so a
// transient API failure never lets them escape the sanction.
func (e *Enforcer) RemoveOrSoftBan(ctx context.Context, chatID, userID int64, reason, meta string) {
	if e.Remove(ctx, chatID, userID, true, storage.ActionBan, reason, meta) {
		return
	}
	now := e.now()
	restriction := storage.ActiveRestriction{
		ChatID:    chatID,
		UserID:    userID,
		Type:      storage.RestrictionBanFallback,
		Until:     now.Add(time.Duration(e.softBanHours) * time.Hour),
		CreatedAt: now,
	}
	if err := e.store.UpsertRestriction(ctx, restriction); err != nil {
		e.logger.Error("soft ban write failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	e.audit.Record(ctx, chatID, userID, storage.ActionBanFallback, reason, meta)
}

// RemoveTemporarily kicks without blocking and schedules a rejoin.
func (e *Enforcer) RemoveTemporarily(ctx context.Context, chatID, userID int64, rejoinAfter time.Duration, reason, meta string) {
	if !e.Remove(ctx, chatID, userID, false, storage.ActionKickTemp, reason, meta) {
		return
	}
	now := e.now()
	if err := e.store.EnqueueRejoin(ctx, chatID, userID, now.Add(rejoinAfter), now); err != nil {
		e.logger.Error("rejoin enqueue failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// MuteText renders a human-readable mute duration for notices.
func MuteText(duration time.Duration) string {
	if duration >= time.Hour {
		return fmt.Sprintf("%.0fh", duration.Hours())
	}
	return fmt.Sprintf("%.0fm", duration.Minutes())
}
