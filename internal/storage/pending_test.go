package storage

import (
	"context"
	"testing"
	"time"
)

func TestRejoinQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.EnqueueRejoin(ctx, 1, 10, now.Add(-time.Minute), now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("enqueue due: %v", err)
	}
	if err := store.EnqueueRejoin(ctx, 1, 11, now.Add(time.Hour), now); err != nil {
		t.Fatalf("enqueue future: %v", err)
	}

	items, err := store.DueRejoins(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(items) != 1 || items[0].UserID != 10 {
		t.Fatalf("due items = %+v, want only user 10", items)
	}

	if err := store.PostponeRejoin(ctx, items[0].ID, now.Add(15*time.Minute)); err != nil {
		t.Fatalf("postpone: %v", err)
	}
	if items, _ := store.DueRejoins(ctx, now, 10); len(items) != 0 {
		t.Fatalf("postponed item still due: %+v", items)
	}
	items, err = store.DueRejoins(ctx, now.Add(16*time.Minute), 10)
	if err != nil {
		t.Fatalf("due after postpone: %v", err)
	}
	if len(items) != 1 || items[0].Attempts != 1 {
		t.Fatalf("postponed item = %+v, want attempts 1", items)
	}

	if err := store.DeleteRejoin(ctx, items[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if items, _ := store.DueRejoins(ctx, now.Add(time.Hour), 10); len(items) != 1 || items[0].UserID != 11 {
		t.Fatalf("remaining items = %+v, want only user 11", items)
	}
}

func TestDeleteQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.EnqueueDelete(ctx, 1, "notice.1", now.Add(-time.Second), now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	items, err := store.DueDeletes(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(items) != 1 || items[0].MessageID != "notice.1" {
		t.Fatalf("due items = %+v", items)
	}

	id := items[0].ID
	if err := store.PostponeDelete(ctx, id, now.Add(15*time.Minute)); err != nil {
		t.Fatalf("postpone: %v", err)
	}
	if items, _ := store.DueDeletes(ctx, now, 10); len(items) != 0 {
		t.Fatalf("postponed item still due: %+v", items)
	}

	if err := store.DeletePendingDelete(ctx, id); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if items, _ := store.DueDeletes(ctx, now.Add(time.Hour), 10); len(items) != 0 {
		t.Fatalf("queue not empty: %+v", items)
	}
}

func TestPurgeQueuesByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Old entry, still not due: the ceiling drops it anyway.
	if err := store.EnqueueRejoin(ctx, 1, 10, now.Add(time.Hour), now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("enqueue old: %v", err)
	}
	if err := store.EnqueueRejoin(ctx, 1, 11, now.Add(time.Hour), now); err != nil {
		t.Fatalf("enqueue fresh: %v", err)
	}

	if err := store.PurgeQueues(ctx, now.Add(-7*24*time.Hour)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	items, err := store.DueRejoins(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(items) != 1 || items[0].UserID != 11 {
		t.Fatalf("items after purge = %+v, want only user 11", items)
	}
}
