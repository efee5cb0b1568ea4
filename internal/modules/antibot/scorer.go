package antibot

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatguard/internal/platform"
	"chatguard/internal/storage"
	"chatguard/internal/utils"
)

// Signal is one weighted contribution to the assessment.
type Signal struct {
	Name  string
	Score float64
}

// Assessment is the transient verdict for one message.
type Assessment struct {
	Signals    []Signal
	Total      float64
	ShouldAct  bool
	ShouldMute bool
}

type Config struct {
	ActThreshold     float64
	MuteThreshold    float64
	SoftThreshold    float64
	HistoryWindow    time.Duration
	BurstShort       time.Duration
	BurstMedium      time.Duration
	BurstShortLimit  int
	BurstMediumLimit int
}

// Scorer combines behavioral, content and reputation signals into a single
// bot-likelihood score. It keeps its own per-user signature history,
// independent of the duplicate detector's cache.
type Scorer struct {
	cfg   Config
	store *storage.Store
	now   func() time.Time

	mu      sync.Mutex
	history map[int64][]sighting
}

type sighting struct {
	signature string
	at        time.Time
}

var phraseCategories = map[string][]string{
	"financial": {
		"easy money", "passive income", "guaranteed profit", "investment opportunity",
		"earn from home", "crypto signals", "double your", "quick cash",
	},
	"gambling_adult": {
		"casino", "free spins", "betting tips", "jackpot", "18+", "onlyfans", "adult content",
	},
	"contact_solicitation": {
		"write me in dm", "message me privately", "contact me on telegram",
		"whatsapp me", "check my bio", "link in profile", "dm for details",
	},
}

func NewScorer(cfg Config, store *storage.Store) *Scorer {
	return &Scorer{
		cfg:     cfg,
		store:   store,
		now:     time.Now,
		history: make(map[int64][]sighting),
	}
}

// WithNow replaces the clock, for tests.
func (s *Scorer) WithNow(now func() time.Time) { s.now = now }

// Assess scores the message. Signal lookups that fail are skipped rather
// than failing the assessment; missing history only lowers the score
// (fail-open).
func (s *Scorer) Assess(ctx context.Context, msg *platform.Message, linkCount int) Assessment {
	now := s.now()
	var a Assessment

	add := func(name string, score float64) {
		if score <= 0 {
			return
		}
		a.Signals = append(a.Signals, Signal{Name: name, Score: score})
		a.Total += score
	}

	// Behavioral: message bursts from the persisted event log.
	if count, err := s.store.CountMessageEvents(ctx, msg.ChatID, msg.Sender.ID,
		storage.EventMessage, now.Add(-s.cfg.BurstShort)); err == nil && count >= s.cfg.BurstShortLimit {
		add("burst_short", 25)
	}
	if count, err := s.store.CountMessageEvents(ctx, msg.ChatID, msg.Sender.ID,
		storage.EventMessage, now.Add(-s.cfg.BurstMedium)); err == nil && count >= s.cfg.BurstMediumLimit {
		add("burst_medium", 20)
	}
	if repeats := s.recordSighting(msg.Sender.ID, msg.CombinedText(), now); repeats >= 2 {
		add("near_duplicate", 20)
	}

	// Content.
	text := strings.ToLower(msg.CombinedText())
	switch {
	case linkCount >= 3:
		add("links", 20)
	case linkCount >= 1:
		add("links", 10)
	}
	for category, phrases := range phraseCategories {
		for _, phrase := range phrases {
			if strings.Contains(text, phrase) {
				add("phrase_"+category, 15)
				break
			}
		}
	}
	if utils.MaxRunLength(text) >= 8 {
		add("char_repetition", 10)
	}
	if utils.UniqueTokenRatio(text, 10) < 0.5 {
		add("low_token_variety", 10)
	}

	// Reputation: capped counts from the audit log.
	day := now.Add(-24 * time.Hour)
	week := now.Add(-7 * 24 * time.Hour)
	priorMutes := 0
	if count, err := s.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionWarn}, nil, day); err == nil {
		add("prior_warns", float64(capInt(count, 3))*5)
	}
	if count, err := s.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionDelete}, nil, day); err == nil {
		add("prior_deletes", float64(capInt(count, 5))*3)
	}
	if count, err := s.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionMute}, nil, week); err == nil {
		priorMutes = count
		add("prior_mutes", float64(capInt(count, 2))*10)
	}
	if count, err := s.store.CountActions(ctx, msg.ChatID, msg.Sender.ID,
		[]string{storage.ActionKick, storage.ActionKickAuto, storage.ActionBan, storage.ActionBanFallback},
		nil, week); err == nil {
		add("prior_removals", float64(capInt(count, 1))*15)
	}

	a.ShouldAct = a.Total >= s.cfg.ActThreshold
	a.ShouldMute = a.Total >= s.cfg.MuteThreshold ||
		(a.Total >= s.cfg.SoftThreshold && priorMutes > 0)
	return a
}

// recordSighting stores the message signature in the scorer's own history
// and returns how many earlier sightings inside the window match it.
func (s *Scorer) recordSighting(userID int64, text string, now time.Time) int {
	signature := utils.NormalizeSignature(text, 8, 128)
	if signature == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.cfg.HistoryWindow)
	kept := s.history[userID][:0]
	matches := 0
	for _, sight := range s.history[userID] {
		if sight.at.Before(cutoff) {
			continue
		}
		kept = append(kept, sight)
		if sight.signature == signature {
			matches++
		}
	}
	s.history[userID] = append(kept, sighting{signature: signature, at: now})
	return matches
}

func capInt(value, ceiling int) int {
	if value > ceiling {
		return ceiling
	}
	return value
}
