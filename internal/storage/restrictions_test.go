package storage

import (
	"context"
	"testing"
	"time"
)

func TestUpsertRestrictionKeepsLatestUntil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := ActiveRestriction{ChatID: 1, UserID: 10, Type: RestrictionMute,
		Until: now.Add(2 * time.Hour), CreatedAt: now}
	if err := store.UpsertRestriction(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// A shorter replacement must not shrink the live restriction.
	second := first
	second.Until = now.Add(time.Hour)
	if err := store.UpsertRestriction(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, active, err := store.GetRestriction(ctx, 1, 10, now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !active {
		t.Fatal("restriction not active")
	}
	if got.Until.Unix() != first.Until.Unix() {
		t.Fatalf("until = %v, want %v", got.Until, first.Until)
	}
}

func TestGetRestrictionIgnoresExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	expired := ActiveRestriction{ChatID: 1, UserID: 10, Type: RestrictionMute,
		Until: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)}
	if err := store.UpsertRestriction(ctx, expired); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	_, active, err := store.GetRestriction(ctx, 1, 10, now)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if active {
		t.Fatal("expired restriction reported active")
	}
}

func TestGetRestrictionMutePrecedence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, typ := range []string{RestrictionBanFallback, RestrictionMute} {
		r := ActiveRestriction{ChatID: 1, UserID: 10, Type: typ,
			Until: now.Add(time.Hour), CreatedAt: now}
		if err := store.UpsertRestriction(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", typ, err)
		}
	}

	got, active, err := store.GetRestriction(ctx, 1, 10, now)
	if err != nil || !active {
		t.Fatalf("get: active=%v err=%v", active, err)
	}
	if got.Type != RestrictionMute {
		t.Fatalf("type = %s, want %s", got.Type, RestrictionMute)
	}
}

func TestRemoveAndPurgeRestrictions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mute := ActiveRestriction{ChatID: 1, UserID: 10, Type: RestrictionMute,
		Until: now.Add(time.Hour), CreatedAt: now}
	if err := store.UpsertRestriction(ctx, mute); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.RemoveRestriction(ctx, 1, 10, RestrictionMute); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, active, _ := store.GetRestriction(ctx, 1, 10, now); active {
		t.Fatal("restriction survived removal")
	}

	stale := ActiveRestriction{ChatID: 2, UserID: 20, Type: RestrictionMute,
		Until: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)}
	if err := store.UpsertRestriction(ctx, stale); err != nil {
		t.Fatalf("upsert stale: %v", err)
	}
	if err := store.PurgeExpiredRestrictions(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, active, _ := store.GetRestriction(ctx, 2, 20, now.Add(-90*time.Minute)); active {
		t.Fatal("purged restriction still readable")
	}
}
