package duplicate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"
	"chatguard/internal/utils"

	"go.uber.org/zap"
)

// Module flags messages whose normalized text the same user already sent
// within the rolling window, in any chat. The signature cache is in-process
// and swept lazily, at most once per sweep interval.
type Module struct {
	mu        sync.Mutex
	lastSeen  map[int64]map[string]time.Time
	lastSweep time.Time

	store    *storage.Store
	enforcer *enforce.Enforcer
	logger   *zap.Logger

	window     time.Duration
	minLength  int
	maxLength  int
	sweepEvery time.Duration
	now        func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger, windowHours, minLength, maxLength, sweepMinutes int) *Module {
	return &Module{
		lastSeen:   make(map[int64]map[string]time.Time),
		store:      store,
		enforcer:   enforcer,
		logger:     logger,
		window:     time.Duration(windowHours) * time.Hour,
		minLength:  minLength,
		maxLength:  maxLength,
		sweepEvery: time.Duration(sweepMinutes) * time.Minute,
		now:        time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (m *Module) WithNow(now func() time.Time) { m.now = now }

func (m *Module) Handle(ctx context.Context, msg *platform.Message, meta string) bool {
	signature := utils.NormalizeSignature(msg.CombinedText(), m.minLength, m.maxLength)
	if signature == "" {
		return false
	}

	now := m.now()
	previous, isDuplicate := m.observe(msg.Sender.ID, signature, now)
	if !isDuplicate {
		return false
	}

	prior, err := m.store.CountActionsAllChats(ctx, msg.Sender.ID,
		[]string{storage.ActionDelete}, []string{storage.ReasonDuplicate}, now.Add(-m.window))
	if err != nil {
		m.logger.Warn("duplicate ladder count failed",
			zap.Int64("user_id", msg.Sender.ID), zap.Error(err))
		prior = 0
	}
	level := prior + 1
	meta = fmt.Sprintf("%s level=%d secondsSincePrevious=%d", meta, level, int(now.Sub(previous).Seconds()))

	if !m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonDuplicate, meta) {
		return true
	}

	name := msg.Sender.DisplayName
	switch level {
	case 1:
		m.enforcer.Notice(ctx, msg.ChatID,
			fmt.Sprintf("%s, that message was already sent. Repeats are removed.", name))
	case 2:
		m.enforcer.Warn(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonDuplicate, meta,
			fmt.Sprintf("%s, stop repeating yourself. This is a warning.", name))
	default:
		m.enforcer.RemoveOrSoftBan(ctx, msg.ChatID, msg.Sender.ID, storage.ReasonDuplicate, meta)
	}
	return true
}

// observe records the signature and reports whether it was already seen
// inside the window, returning the previous sighting.
func (m *Module) observe(userID int64, signature string, now time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeSweep(now)

	byUser := m.lastSeen[userID]
	if byUser == nil {
		byUser = make(map[string]time.Time)
		m.lastSeen[userID] = byUser
	}
	previous, seen := byUser[signature]
	byUser[signature] = now

	if !seen || now.Sub(previous) > m.window {
		return time.Time{}, false
	}
	return previous, true
}

func (m *Module) maybeSweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.sweepEvery {
		return
	}
	m.lastSweep = now
	cutoff := now.Add(-m.window)
	for userID, byUser := range m.lastSeen {
		for signature, seen := range byUser {
			if seen.Before(cutoff) {
				delete(byUser, signature)
			}
		}
		if len(byUser) == 0 {
			delete(m.lastSeen, userID)
		}
	}
}
