package links

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

// Module enforces the per-chat link policy: any detected link whose domain
// is not on (or under) the chat's whitelist is a violation, escalated by the
// count of prior link deletions in the rolling window.
type Module struct {
	store    *storage.Store
	enforcer *enforce.Enforcer
	logger   *zap.Logger
	window   time.Duration
	now      func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger, windowHours int) *Module {
	return &Module{
		store:    store,
		enforcer: enforcer,
		logger:   logger,
		window:   time.Duration(windowHours) * time.Hour,
		now:      time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (m *Module) WithNow(now func() time.Time) { m.now = now }

// Handle checks the already-extracted links and applies the ladder when any
// is forbidden. A whitelist read failure fails closed: unknown links are the
// unsafe direction, so they are treated as forbidden.
func (m *Module) Handle(ctx context.Context, msg *platform.Message, detected []Link, meta string) bool {
	if len(detected) == 0 {
		return false
	}

	whitelist, err := m.store.ListDomainAllow(ctx, msg.ChatID)
	if err != nil {
		m.logger.Warn("whitelist read failed, failing closed",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		whitelist = nil
	}

	var forbidden []Link
	for _, link := range detected {
		if !allowed(link.Domain, whitelist) {
			forbidden = append(forbidden, link)
		}
	}
	if len(forbidden) == 0 {
		return false
	}

	prior, err := m.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionDelete}, []string{storage.ReasonLink}, m.now().Add(-m.window))
	if err != nil {
		// Count failure degrades to first-level handling rather than
		// letting the link through.
		m.logger.Warn("link ladder count failed",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		prior = 0
	}
	level := prior + 1
	meta = fmt.Sprintf("%s level=%d domain=%s", meta, level, forbidden[0].Domain)

	if !m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonLink, meta) {
		return true
	}

	name := msg.Sender.DisplayName
	switch {
	case level == 1:
		m.enforcer.Notice(ctx, msg.ChatID,
			fmt.Sprintf("%s, links are not allowed here.", name))
	case level == 2:
		m.enforcer.Warn(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonLink, meta,
			fmt.Sprintf("%s, second link today. Consider this a warning.", name))
	case level == 3:
		m.enforcer.Warn(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonLink, meta,
			fmt.Sprintf("%s, final warning: one more link and you are out.", name))
	default:
		m.enforcer.RemoveOrSoftBan(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonLink, meta)
	}
	return true
}

func allowed(domain string, whitelist []string) bool {
	for _, entry := range whitelist {
		entry = strings.ToLower(entry)
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
