package storage

import (
	"context"
	"testing"
	"time"
)

func appendAt(t *testing.T, store *Store, chatID, userID int64, action, reason string, at time.Time) {
	t.Helper()
	err := store.AppendAction(context.Background(), ModerationAction{
		ChatID:    chatID,
		UserID:    userID,
		Action:    action,
		Reason:    reason,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append action: %v", err)
	}
}

func TestCountActionsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendAt(t, store, 1, 10, ActionDelete, ReasonLink, now.Add(-time.Hour))
	appendAt(t, store, 1, 10, ActionDelete, ReasonLink, now.Add(-2*time.Hour))
	appendAt(t, store, 1, 10, ActionWarn, ReasonLink, now.Add(-time.Hour))
	appendAt(t, store, 1, 10, ActionDelete, ReasonDuplicate, now.Add(-time.Hour))
	appendAt(t, store, 1, 10, ActionDelete, ReasonLink, now.Add(-30*time.Hour)) // outside window
	appendAt(t, store, 2, 10, ActionDelete, ReasonLink, now.Add(-time.Hour))    // other chat
	appendAt(t, store, 1, 11, ActionDelete, ReasonLink, now.Add(-time.Hour))    // other user

	since := now.Add(-24 * time.Hour)
	count, err := store.CountActions(ctx, 1, 10, []string{ActionDelete}, []string{ReasonLink}, since)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("delete/link count = %d, want 2", count)
	}

	// Empty filters mean any action, any reason.
	count, err = store.CountActions(ctx, 1, 10, nil, nil, since)
	if err != nil {
		t.Fatalf("count any: %v", err)
	}
	if count != 4 {
		t.Fatalf("any count = %d, want 4", count)
	}
}

func TestCountActionsAllChats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendAt(t, store, 1, 10, ActionMute, ReasonSpam, now.Add(-time.Hour))
	appendAt(t, store, 2, 10, ActionMute, ReasonSpam, now.Add(-2*time.Hour))
	appendAt(t, store, 3, 99, ActionMute, ReasonSpam, now.Add(-time.Hour))

	count, err := store.CountActionsAllChats(ctx, 10, []string{ActionMute}, nil, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("cross-chat mute count = %d, want 2", count)
	}
}

func TestListActionTimesNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendAt(t, store, 1, 10, ActionMute, ReasonSpam, now.Add(-3*time.Hour))
	appendAt(t, store, 1, 10, ActionMute, ReasonNight, now.Add(-time.Hour))
	appendAt(t, store, 1, 10, ActionWarn, ReasonSpam, now.Add(-2*time.Hour))

	times, err := store.ListActionTimes(ctx, 1, 10, ActionMute, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("times = %v, want 2 entries", times)
	}
	if !times[0].After(times[1]) {
		t.Fatalf("times not newest first: %v", times)
	}
	if times[0].Unix() != now.Add(-time.Hour).Unix() {
		t.Fatalf("newest = %v, want %v", times[0], now.Add(-time.Hour))
	}
}

func TestPurgeActions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	appendAt(t, store, 1, 10, ActionDelete, ReasonLink, now.Add(-40*24*time.Hour))
	appendAt(t, store, 1, 10, ActionDelete, ReasonLink, now.Add(-time.Hour))

	if err := store.PurgeActions(ctx, now.Add(-30*24*time.Hour)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	count, err := store.CountActions(ctx, 1, 10, nil, nil, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after purge = %d, want 1", count)
	}
}
