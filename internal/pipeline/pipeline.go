package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatguard/internal/config"
	"chatguard/internal/enforce"
	"chatguard/internal/escalate"
	"chatguard/internal/metrics"
	"chatguard/internal/modules/antibot"
	"chatguard/internal/modules/duplicate"
	"chatguard/internal/modules/links"
	"chatguard/internal/modules/nightwatch"
	"chatguard/internal/modules/quota"
	"chatguard/internal/modules/spammer"
	"chatguard/internal/platform"
	"chatguard/internal/storage"
	"chatguard/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dedupTTL = 30 * time.Minute

// Pipeline runs every inbound message through the fixed sequence of gates.
// Each gate either falls through or short-circuits by enforcing; a gate
// failure degrades to its documented fail-open/fail-closed outcome and
// never aborts the rest of the pipeline.
type Pipeline struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *storage.Store
	admins   platform.AdminResolver
	enforcer *enforce.Enforcer
	guard    *memoryGuard
	metrics  *metrics.Set

	spamMod   *spammer.Module
	linkMod   *links.Module
	dupMod    *duplicate.Module
	botMod    *antibot.Module
	quotaMod  *quota.Module
	nightMod  *nightwatch.Module
	ladder    *escalate.Ladder

	floodMu sync.Mutex
	floods  map[string]*utils.SlidingWindow

	now func() time.Time
}

type Deps struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *storage.Store
	Admins   platform.AdminResolver
	Enforcer *enforce.Enforcer
	Metrics  *metrics.Set

	Spammer   *spammer.Module
	Links     *links.Module
	Duplicate *duplicate.Module
	AntiBot   *antibot.Module
	Quota     *quota.Module
	Night     *nightwatch.Module
	Ladder    *escalate.Ladder
}

func New(deps Deps) *Pipeline {
	return &Pipeline{
		cfg:      deps.Config,
		logger:   deps.Logger,
		store:    deps.Store,
		admins:   deps.Admins,
		enforcer: deps.Enforcer,
		guard:    newMemoryGuard(dedupTTL),
		metrics:  deps.Metrics,
		spamMod:  deps.Spammer,
		linkMod:  deps.Links,
		dupMod:   deps.Duplicate,
		botMod:   deps.AntiBot,
		quotaMod: deps.Quota,
		nightMod: deps.Night,
		ladder:   deps.Ladder,
		floods:   make(map[string]*utils.SlidingWindow),
		now:      time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (p *Pipeline) WithNow(now func() time.Time) { p.now = now }

// Process handles one inbound message end to end. It never returns an
// error: every failure mode has a named degradation.
func (p *Pipeline) Process(ctx context.Context, msg *platform.Message) {
	if msg == nil || msg.Sender.IsBot || msg.ChatKind == "dialog" {
		return
	}
	p.metrics.Processed.Inc()

	// Idempotency: fast memory layer first, then the durable table. A
	// durable-layer error falls back to the memory verdict alone.
	if p.guard.Seen(msg.ChatID, msg.ID) {
		p.metrics.Fired("dedup")
		return
	}
	inserted, err := p.store.MarkProcessed(ctx, msg.ChatID, msg.ID, p.now())
	if err != nil {
		p.logger.Warn("durable dedup failed, using memory verdict",
			zap.Int64("chat_id", msg.ChatID), zap.String("message_id", msg.ID), zap.Error(err))
	} else if !inserted {
		p.metrics.Fired("dedup")
		return
	}

	settings, err := p.store.GetChatSettings(ctx, msg.ChatID, p.defaultSettings(msg.ChatID))
	if err != nil {
		p.logger.Warn("settings read failed, using defaults",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		settings = p.defaultSettings(msg.ChatID)
	}
	if !settings.Enabled {
		return
	}

	if isAdmin, err := p.admins.IsAdmin(ctx, msg.ChatID, msg.Sender.ID); err != nil {
		p.logger.Warn("admin lookup failed, treating as member",
			zap.Int64("chat_id", msg.ChatID), zap.Int64("user_id", msg.Sender.ID), zap.Error(err))
	} else if isAdmin {
		return
	}

	p.recordEvents(ctx, msg)
	meta := "cid=" + uuid.NewString()

	if p.spamMod.Handle(ctx, msg, meta) {
		p.metrics.Fired("global_spammer")
		return
	}
	if p.handleRestriction(ctx, msg, meta) {
		p.metrics.Fired("restriction")
		return
	}

	detected := links.Extract(msg)
	if p.linkMod.Handle(ctx, msg, detected, meta) {
		p.metrics.Fired("link")
		return
	}
	if p.quotaMod.HandleLength(ctx, msg, settings.MaxTextLength, meta) {
		p.metrics.Fired("length")
		return
	}
	if p.dupMod.Handle(ctx, msg, meta) {
		p.metrics.Fired("duplicate")
		return
	}
	if p.botMod.Handle(ctx, msg, len(detected), meta) {
		p.metrics.Fired("antibot")
		return
	}
	if p.quotaMod.HandlePhoto(ctx, msg, settings.PhotoLimitPerHour, meta) {
		p.metrics.Fired("photo")
		return
	}
	if p.quotaMod.HandleDaily(ctx, msg, settings.DailyLimit, p.chatZone(msg.ChatID), meta) {
		p.metrics.Fired("daily")
		return
	}
	if p.nightMod.Handle(ctx, msg, meta) {
		p.metrics.Fired("night")
		return
	}
	if p.handleFlood(ctx, msg, settings, meta) {
		p.metrics.Fired("spam")
		return
	}
	p.metrics.Fired("allowed")
}

// recordEvents appends the message to the rolling event log before any
// detector runs, so burst and photo counts include the current message.
func (p *Pipeline) recordEvents(ctx context.Context, msg *platform.Message) {
	now := p.now()
	if err := p.store.AddMessageEvent(ctx, msg.ChatID, msg.Sender.ID, storage.EventMessage, now); err != nil {
		p.logger.Warn("event append failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
	if msg.HasPhoto() {
		if err := p.store.AddMessageEvent(ctx, msg.ChatID, msg.Sender.ID, storage.EventPhoto, now); err != nil {
			p.logger.Warn("event append failed", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		}
	}
}

// handleRestriction deletes anything a restricted user sends. Enough
// deletes inside one mute is evasion: the user is removed temporarily and a
// rejoin is scheduled, once per restriction.
func (p *Pipeline) handleRestriction(ctx context.Context, msg *platform.Message, meta string) bool {
	restriction, active, err := p.store.GetRestriction(ctx, msg.ChatID, msg.Sender.ID, p.now())
	if err != nil {
		p.logger.Warn("restriction lookup failed, failing open",
			zap.Int64("chat_id", msg.ChatID), zap.Int64("user_id", msg.Sender.ID), zap.Error(err))
		return false
	}
	if !active {
		return false
	}

	if restriction.Type != storage.RestrictionMute {
		p.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonRestricted, meta)
		return true
	}

	p.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonMuteActive, meta)

	deletes, err := p.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionDelete}, []string{storage.ReasonMuteActive}, restriction.CreatedAt)
	if err != nil {
		p.logger.Warn("evasion count failed",
			zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		return true
	}
	if deletes <= p.cfg.Restriction.EvasionDeletes {
		return true
	}
	removed, err := p.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionKickTemp}, nil, restriction.CreatedAt)
	if err != nil || removed > 0 {
		return true
	}
	rejoinAfter := time.Duration(p.cfg.Restriction.RejoinHours) * time.Hour
	p.enforcer.RemoveTemporarily(ctx, msg.ChatID, msg.Sender.ID, rejoinAfter,
		storage.ReasonEvasion, fmt.Sprintf("%s deletes=%d", meta, deletes))
	return true
}

func (p *Pipeline) handleFlood(ctx context.Context, msg *platform.Message, settings storage.ChatSettings, meta string) bool {
	if settings.SpamThreshold <= 0 || settings.SpamWindowSec <= 0 {
		return false
	}
	window := p.floodWindow(msg.ChatID, msg.Sender.ID, settings.SpamWindowSec)
	if window.Add(p.now()) < settings.SpamThreshold {
		return false
	}
	if !p.enforcer.Delete(ctx, msg.ChatID, msg.Sender.ID, msg.ID, storage.ReasonSpam, meta) {
		return true
	}
	p.ladder.Advance(ctx, msg.ChatID, msg.Sender.ID, msg.Sender.DisplayName, storage.ReasonSpam, meta)
	return true
}

func (p *Pipeline) floodWindow(chatID, userID int64, windowSec int) *utils.SlidingWindow {
	key := fmt.Sprintf("%d:%d", chatID, userID)
	p.floodMu.Lock()
	defer p.floodMu.Unlock()
	window := p.floods[key]
	if window == nil {
		window = utils.NewSlidingWindow(time.Duration(windowSec) * time.Second)
		p.floods[key] = window
	}
	return window
}

func (p *Pipeline) chatZone(chatID int64) *time.Location {
	if loc, ok := p.nightMod.Zone(chatID); ok {
		return loc
	}
	return time.UTC
}

func (p *Pipeline) defaultSettings(chatID int64) storage.ChatSettings {
	d := p.cfg.Defaults
	return storage.ChatSettings{
		ChatID:            chatID,
		Enabled:           d.Enabled,
		DailyLimit:        d.DailyLimit,
		PhotoLimitPerHour: d.PhotoLimitPerHour,
		MaxTextLength:     d.MaxTextLength,
		SpamThreshold:     d.SpamThreshold,
		SpamWindowSec:     d.SpamWindowSeconds,
	}
}
