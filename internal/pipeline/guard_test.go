package pipeline

import (
	"testing"
	"time"
)

func TestMemoryGuardSeen(t *testing.T) {
	guard := newMemoryGuard(30 * time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	if guard.Seen(1, "msg.1") {
		t.Fatal("fresh message reported as seen")
	}
	if !guard.Seen(1, "msg.1") {
		t.Fatal("redelivery not reported as seen")
	}
	if guard.Seen(2, "msg.1") {
		t.Fatal("same id in another chat reported as seen")
	}

	// Past the TTL the entry expires and the message counts as new again.
	now = now.Add(31 * time.Minute)
	if guard.Seen(1, "msg.1") {
		t.Fatal("expired entry still reported as seen")
	}
}
