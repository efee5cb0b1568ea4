package nightwatch

import (
	"context"
	"fmt"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

// Module suppresses messages sent during a chat's local overnight window.
// Only chats with a configured timezone participate. All civil-time math
// goes through the tz database so DST transitions land correctly.
type Module struct {
	store     *storage.Store
	enforcer  *enforce.Enforcer
	logger    *zap.Logger
	zones     map[int64]*time.Location
	startHour int
	endHour   int
	now       func() time.Time
}

func New(store *storage.Store, enforcer *enforce.Enforcer, logger *zap.Logger, chats map[int64]string, startHour, endHour int) *Module {
	zones := make(map[int64]*time.Location, len(chats))
	for chatID, name := range chats {
		loc, err := time.LoadLocation(name)
		if err != nil {
			logger.Error("quiet hours timezone rejected",
				zap.Int64("chat_id", chatID), zap.String("zone", name), zap.Error(err))
			continue
		}
		zones[chatID] = loc
	}
	return &Module{
		store:     store,
		enforcer:  enforcer,
		logger:    logger,
		zones:     zones,
		startHour: startHour,
		endHour:   endHour,
		now:       time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (m *Module) WithNow(now func() time.Time) { m.now = now }

// Zone returns the chat's configured location, if any. Other checks that
// need the chat's civil day reuse it.
func (m *Module) Zone(chatID int64) (*time.Location, bool) {
	loc, ok := m.zones[chatID]
	return loc, ok
}

func (m *Module) Handle(ctx context.Context, msg *platform.Message, meta string) bool {
	loc, ok := m.zones[msg.ChatID]
	if !ok {
		return false
	}
	now := m.now()
	local := now.In(loc)
	if !m.inWindow(local) {
		return false
	}

	nightStart := m.nightStart(local)
	prior, err := m.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionDelete}, []string{storage.ReasonNight}, nightStart)
	if err != nil {
		m.logger.Warn("night ladder count failed",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		prior = 0
	}

	meta = fmt.Sprintf("%s local=%s", meta, local.Format("15:04"))
	if !m.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonNight, meta) {
		return true
	}
	if prior == 0 {
		// First offence of the night is a silent delete.
		return true
	}

	until := m.nightEnd(local)
	m.enforcer.Mute(ctx, msg.ChatID, msg.Sender.ID, until.Sub(now), storage.ReasonNight, meta)
	m.enforcer.Notice(ctx, msg.ChatID,
		fmt.Sprintf("%s is muted until %s. Quiet hours.", msg.Sender.DisplayName, until.In(loc).Format("15:04")))
	return true
}

func (m *Module) inWindow(local time.Time) bool {
	hour := local.Hour()
	if m.startHour > m.endHour {
		return hour >= m.startHour || hour < m.endHour
	}
	return hour >= m.startHour && hour < m.endHour
}

// nightStart is when the current night's window opened, in local time.
func (m *Module) nightStart(local time.Time) time.Time {
	day := local
	if local.Hour() < m.startHour {
		day = local.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), m.startHour, 0, 0, 0, local.Location())
}

// nightEnd is when the current night's window closes. Constructed through
// time.Date in the chat's location, so a DST jump inside the night shifts
// the absolute instant accordingly.
func (m *Module) nightEnd(local time.Time) time.Time {
	day := local
	if local.Hour() >= m.startHour {
		day = local.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), m.endHour, 0, 0, 0, local.Location())
}
