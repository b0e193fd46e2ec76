package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestPresenceSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	presence := NewPresence(newClient(mr), time.Minute)

	if err := presence.MarkOnline(ctx, "t1", "s1"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if err := presence.MarkOnline(ctx, "t1", "s2"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if err := presence.MarkOnline(ctx, "t2", "s9"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if !mr.Exists("presence:t1:s1") {
		t.Fatalf("expected redis key to be set")
	}

	online, err := presence.Online(ctx, "t1")
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if len(online) != 2 || !online["s1"] || !online["s2"] {
		t.Fatalf("unexpected online set %v", online)
	}

	if err := presence.MarkOffline(ctx, "t1", "s1"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
	if mr.Exists("presence:t1:s1") {
		t.Fatalf("expected redis key to be removed")
	}

	mr.FastForward(2 * time.Minute)
	online, err = presence.Online(ctx, "t1")
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if len(online) != 0 {
		t.Fatalf("expected marks to expire, got %v", online)
	}
}
