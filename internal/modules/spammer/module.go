package spammer

import (
	"context"
	"fmt"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

const (
	window          = 72 * time.Hour
	severeMinimum   = 1
	muteMinimum     = 2
	warnMinimum     = 4
	combinedMinimum = 4
)

var severeActions = []string{
	storage.ActionBan,
	storage.ActionBanFallback,
	storage.ActionKick,
	storage.ActionKickAuto,
}

var combinedReasons = []string{
	storage.ReasonSpam,
	storage.ReasonLink,
	storage.ReasonAntiBot,
}

// Module is the global cross-chat spammer gate: a user with a recent severe
// action anywhere plus enough secondary history is removed from this chat
// before any content check runs. Lookup failures fail open.
type Module struct {
	store    *storage.Store
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	now      func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger) *Module {
	return &Module{store: store, enforcer: enforcer, logger: logger, now: time.Now}
}

// WithNow replaces the clock, for tests.
func (m *Module) WithNow(now func() time.Time) { m.now = now }

func (m *Module) Handle(ctx context.Context, msg *platform.Message, meta string) bool {
	since := m.now().Add(-window)
	userID := msg.Sender.ID

	severe, err := m.store.CountActionsAllChats(ctx, userID, severeActions, nil, since)
	if err != nil {
		m.logger.Warn("global spammer lookup failed, failing open",
			zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	if severe < severeMinimum {
		return false
	}

	mutes, err := m.store.CountActionsAllChats(ctx, userID, []string{storage.ActionMute}, nil, since)
	if err != nil {
		m.logger.Warn("global spammer lookup failed, failing open",
			zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	warns, err := m.store.CountActionsAllChats(ctx, userID, []string{storage.ActionWarn}, nil, since)
	if err != nil {
		m.logger.Warn("global spammer lookup failed, failing open",
			zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	combined, err := m.store.CountActionsAllChats(ctx, userID, nil, combinedReasons, since)
	if err != nil {
		m.logger.Warn("global spammer lookup failed, failing open",
			zap.Int64("user_id", userID), zap.Error(err))
		return false
	}

	if mutes < muteMinimum && warns < warnMinimum && combined < combinedMinimum {
		return false
	}

	meta = fmt.Sprintf("%s severe=%d mutes=%d warns=%d combined=%d", meta, severe, mutes, warns, combined)
	m.enforcer.Delete(ctx, msg.ChatID, userID, msg.ID, storage.ReasonGlobal, meta)
	m.enforcer.RemoveOrSoftBan(ctx, msg.ChatID, userID, storage.ReasonGlobal, meta)
	return true
}
