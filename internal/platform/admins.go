package platform

import (
	"context"
	"sync"
	"time"
)

type adminEntry struct {
	isAdmin   bool
	fetchedAt time.Time
}

// CachedAdminResolver wraps another resolver with a per-(chat,user) TTL
// cache so the hot pipeline path rarely pays an API round trip.
type CachedAdminResolver struct {
	mu      sync.Mutex
	inner   AdminResolver
	ttl     time.Duration
	entries map[[2]int64]adminEntry
	now     func() time.Time
}

func NewCachedAdminResolver(inner AdminResolver, ttl time.Duration) *CachedAdminResolver {
	return &CachedAdminResolver{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[[2]int64]adminEntry),
		now:     time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (r *CachedAdminResolver) WithNow(now func() time.Time) {
	r.now = now
}

func (r *CachedAdminResolver) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	key := [2]int64{chatID, userID}
	now := r.now()

	r.mu.Lock()
	entry, ok := r.entries[key]
	r.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < r.ttl {
		return entry.isAdmin, nil
	}

	isAdmin, err := r.inner.IsAdmin(ctx, chatID, userID)
	if err != nil {
		// Serve a stale answer over an error; the pipeline treats a
		// resolver failure as "not admin" otherwise.
		if ok {
			return entry.isAdmin, nil
		}
		return false, err
	}

	r.mu.Lock()
	r.entries[key] = adminEntry{isAdmin: isAdmin, fetchedAt: now}
	if len(r.entries) > 10000 {
		for k, e := range r.entries {
			if now.Sub(e.fetchedAt) >= r.ttl {
				delete(r.entries, k)
			}
		}
	}
	r.mu.Unlock()

	return isAdmin, nil
}
