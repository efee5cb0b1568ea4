package pipeline

import (
	"fmt"
	"sync"
	"time"
)

const guardTrimThreshold = 10000

// memoryGuard is the fast first layer of message dedup: a TTL map keyed by
// (chat, message). It self-trims once it grows past a size threshold. The
// durable dedup table remains authoritative across restarts.
type memoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func newMemoryGuard(ttl time.Duration) *memoryGuard {
	return &memoryGuard{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen records the message and reports whether it was already present and
// unexpired.
func (g *memoryGuard) Seen(chatID int64, messageID string) bool {
	key := fmt.Sprintf("%d:%s", chatID, messageID)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.entries[key]
	seen := ok && now.Sub(at) < g.ttl
	if !seen {
		g.entries[key] = now
	}
	if len(g.entries) > guardTrimThreshold {
		g.trim(now)
	}
	return seen
}

func (g *memoryGuard) trim(now time.Time) {
	for key, at := range g.entries {
		if now.Sub(at) >= g.ttl {
			delete(g.entries, key)
		}
	}
}
