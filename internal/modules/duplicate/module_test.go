package duplicate

import (
	"context"
	"testing"
	"time"

	"chatguard/internal/enforce"
	"chatguard/internal/modules/audit"
	"chatguard/internal/platform"
	"chatguard/internal/storage"

	"go.uber.org/zap"
)

func newTestModule(t *testing.T) (*Module, *platform.FakeClient, *storage.Store, *time.Time) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := platform.NewFakeClient()
	logger := zap.NewNop()
	recorder := audit.NewRecorder(store, logger)
	recorder.WithNow(func() time.Time { return now })

	enforcer := enforce.New(client, store, recorder, logger, 24, 24)
	enforcer.WithNow(func() time.Time { return now })
	enforcer.WithSleep(func(time.Duration) {})

	module := New(store, enforcer, logger, 24, 12, 256, 10)
	module.WithNow(func() time.Time { return now })
	return module, client, store, &now
}

func message(id string, chatID int64, text string) *platform.Message {
	return &platform.Message{
		ID:     id,
		Sender: platform.User{ID: 10, DisplayName: "Alice"},
		ChatID: chatID,
		Text:   text,
	}
}

func TestHandleFlagsRepeatAcrossChats(t *testing.T) {
	module, client, _, now := newTestModule(t)
	ctx := context.Background()
	text := "Great deal on watches, act fast before it is gone"

	if module.Handle(ctx, message("msg.1", 1, text), "cid=a") {
		t.Fatal("first occurrence flagged")
	}

	*now = now.Add(20 * time.Second)
	if !module.Handle(ctx, message("msg.2", 2, text), "cid=b") {
		t.Fatal("repeat in another chat not flagged")
	}
	if len(client.Deleted) != 1 || client.Deleted[0] != "2:msg.2" {
		t.Fatalf("deleted = %v", client.Deleted)
	}
	if len(client.Notices) != 1 {
		t.Fatalf("notices = %v, want the level 1 explanation", client.Notices)
	}
}

func TestHandleIgnoresCosmeticVariation(t *testing.T) {
	module, _, _, now := newTestModule(t)
	ctx := context.Background()

	if module.Handle(ctx, message("msg.1", 1, "Buy NOW!!! Limited offer today"), "cid=a") {
		t.Fatal("first occurrence flagged")
	}
	*now = now.Add(time.Minute)
	if !module.Handle(ctx, message("msg.2", 1, "buy   now, limited OFFER today"), "cid=b") {
		t.Fatal("cosmetic variation not flagged as the same message")
	}
}

func TestHandleEscalates(t *testing.T) {
	module, client, store, now := newTestModule(t)
	ctx := context.Background()
	text := "Great deal on watches, act fast before it is gone"

	module.Handle(ctx, message("msg.1", 1, text), "cid=a")
	for i, id := range []string{"msg.2", "msg.3", "msg.4"} {
		*now = now.Add(time.Minute)
		if !module.Handle(ctx, message(id, 1, text), "cid=b") {
			t.Fatalf("repeat %d not flagged", i)
		}
	}

	// Level 1 notice, level 2 warn, level 3 removal.
	warns, err := store.CountActions(ctx, 1, 10,
		[]string{storage.ActionWarn}, []string{storage.ReasonDuplicate}, time.Unix(0, 0))
	if err != nil || warns != 1 {
		t.Fatalf("warn rows = %d, %v, want 1", warns, err)
	}
	if len(client.Removed) != 1 {
		t.Fatalf("removals = %+v, want 1", client.Removed)
	}
}

func TestHandleForgetsOutsideWindow(t *testing.T) {
	module, _, _, now := newTestModule(t)
	ctx := context.Background()
	text := "Great deal on watches, act fast before it is gone"

	if module.Handle(ctx, message("msg.1", 1, text), "cid=a") {
		t.Fatal("first occurrence flagged")
	}
	*now = now.Add(25 * time.Hour)
	if module.Handle(ctx, message("msg.2", 1, text), "cid=b") {
		t.Fatal("repeat outside the window flagged")
	}
}

func TestHandleSkipsShortMessages(t *testing.T) {
	module, _, _, now := newTestModule(t)
	ctx := context.Background()

	if module.Handle(ctx, message("msg.1", 1, "ok"), "cid=a") {
		t.Fatal("short message flagged")
	}
	*now = now.Add(time.Second)
	if module.Handle(ctx, message("msg.2", 1, "ok"), "cid=b") {
		t.Fatal("short repeat flagged")
	}
}
