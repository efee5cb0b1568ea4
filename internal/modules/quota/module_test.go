package quota

import (
	"context"
	"fmt"
	"strings"
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

	module := New(store, enforcer, logger, 60)
	module.WithNow(func() time.Time { return now })
	return module, client, store, &now
}

func message(id string) *platform.Message {
	return &platform.Message{
		ID:     id,
		Sender: platform.User{ID: 10, DisplayName: "Alice"},
		ChatID: 1,
		Text:   "hello",
	}
}

func photoMessage(id string) *platform.Message {
	msg := message(id)
	msg.Attachments = []platform.Attachment{{Type: "image", Payload: map[string]any{}}}
	return msg
}

func TestHandleLength(t *testing.T) {
	module, client, store, _ := newTestModule(t)
	ctx := context.Background()

	msg := message("msg.1")
	msg.Text = strings.Repeat("a", 50)
	if module.HandleLength(ctx, msg, 100, "cid=a") {
		t.Fatal("within-limit message flagged")
	}
	if module.HandleLength(ctx, msg, 0, "cid=a") {
		t.Fatal("zero ceiling must disable the check")
	}

	msg.Text = strings.Repeat("ы", 101) // rune count, not bytes
	if !module.HandleLength(ctx, msg, 100, "cid=a") {
		t.Fatal("over-length message not flagged")
	}
	if len(client.Deleted) != 1 {
		t.Fatalf("deleted = %v", client.Deleted)
	}
	// The warning is recorded without a chat notice.
	warns, err := store.CountActions(ctx, 1, 10,
		[]string{storage.ActionWarn}, []string{storage.ReasonLength}, time.Unix(0, 0))
	if err != nil || warns != 1 {
		t.Fatalf("warn rows = %d, %v", warns, err)
	}
	if len(client.Notices) != 0 {
		t.Fatalf("notices = %v, want none", client.Notices)
	}

	msg.Text = strings.Repeat("ы", 100)
	if module.HandleLength(ctx, msg, 100, "cid=a") {
		t.Fatal("message exactly at the limit flagged")
	}
}

func TestHandleDailyResetsAtLocalMidnight(t *testing.T) {
	module, client, _, now := newTestModule(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// 23:30 local on June 1st.
	*now = time.Date(2025, 6, 1, 23, 30, 0, 0, loc)

	for i := 1; i <= 3; i++ {
		if module.HandleDaily(ctx, message(fmt.Sprintf("msg.%d", i)), 3, loc, "cid=a") {
			t.Fatalf("message %d within the quota flagged", i)
		}
	}
	if !module.HandleDaily(ctx, message("msg.4"), 3, loc, "cid=a") {
		t.Fatal("message over the quota not flagged")
	}
	if len(client.Deleted) != 1 {
		t.Fatalf("deleted = %v", client.Deleted)
	}
	if len(client.Notices) != 1 {
		t.Fatalf("notices = %v, want the quota notice", client.Notices)
	}

	// 40 minutes later it is the next local day: the counter starts over.
	*now = now.Add(40 * time.Minute)
	if module.HandleDaily(ctx, message("msg.5"), 3, loc, "cid=a") {
		t.Fatal("first message of the new local day flagged")
	}
}

func TestHandleDailyDisabledByZeroLimit(t *testing.T) {
	module, client, _, _ := newTestModule(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if module.HandleDaily(ctx, message(fmt.Sprintf("msg.%d", i)), 0, time.UTC, "cid=a") {
			t.Fatal("disabled quota flagged a message")
		}
	}
	if client.DeleteCalls != 0 {
		t.Fatalf("delete calls = %d", client.DeleteCalls)
	}
}

func TestHandlePhotoEscalatesWarnThenMute(t *testing.T) {
	module, client, store, now := newTestModule(t)
	ctx := context.Background()
	base := *now

	// The pipeline records photo events before the check runs; mirror that.
	sendPhoto := func(id string, offset time.Duration) bool {
		*now = base.Add(offset)
		if err := store.AddMessageEvent(ctx, 1, 10, storage.EventPhoto, *now); err != nil {
			t.Fatalf("event: %v", err)
		}
		return module.HandlePhoto(ctx, photoMessage(id), 2, "cid=a")
	}

	if sendPhoto("msg.1", 0) || sendPhoto("msg.2", time.Minute) {
		t.Fatal("photos within the hourly limit flagged")
	}
	// Third photo in the hour: first violation, delete plus warning.
	if !sendPhoto("msg.3", 2*time.Minute) {
		t.Fatal("first violation not flagged")
	}
	warns, err := store.CountActions(ctx, 1, 10,
		[]string{storage.ActionWarn}, []string{storage.ReasonPhoto}, time.Unix(0, 0))
	if err != nil || warns != 1 {
		t.Fatalf("warn rows = %d, %v", warns, err)
	}

	// Second violation: delete only.
	if !sendPhoto("msg.4", 3*time.Minute) {
		t.Fatal("second violation not flagged")
	}
	if _, active, _ := store.GetRestriction(ctx, 1, 10, *now); active {
		t.Fatal("mute before the third violation")
	}

	// Third violation: timed mute.
	if !sendPhoto("msg.5", 4*time.Minute) {
		t.Fatal("third violation not flagged")
	}
	if _, active, _ := store.GetRestriction(ctx, 1, 10, *now); !active {
		t.Fatal("no mute after the third violation")
	}
	if len(client.Deleted) != 3 {
		t.Fatalf("deleted = %v, want 3", client.Deleted)
	}
}

func TestHandlePhotoWindowSlides(t *testing.T) {
	module, _, store, now := newTestModule(t)
	ctx := context.Background()
	base := *now

	for i, offset := range []time.Duration{0, time.Minute} {
		*now = base.Add(offset)
		if err := store.AddMessageEvent(ctx, 1, 10, storage.EventPhoto, *now); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	// An hour later the old photos left the window.
	*now = base.Add(61 * time.Minute)
	if err := store.AddMessageEvent(ctx, 1, 10, storage.EventPhoto, *now); err != nil {
		t.Fatalf("event: %v", err)
	}
	if module.HandlePhoto(ctx, photoMessage("msg.9"), 2, "cid=a") {
		t.Fatal("photo flagged after the window slid")
	}
}
