package live

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"barangay/api/internal/logging"
)

func setupTestRedis(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	notifier, err := NewRedisNotifier("redis://"+s.Addr(), logging.Discard())
	if err != nil {
		t.Fatalf("failed to create redis notifier: %v", err)
	}
	t.Cleanup(func() { _ = notifier.Close() })
	return notifier, s
}

func TestNewRedisNotifier(t *testing.T) {
	notifier, _ := setupTestRedis(t)
	if err := notifier.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisNotifierRejectsBadURL(t *testing.T) {
	if _, err := NewRedisNotifier("not a url", nil); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestRedisPublishReachesListener(t *testing.T) {
	notifier, _ := setupTestRedis(t)
	ctx := context.Background()

	changes, stop, err := notifier.Listen(ctx, "u1")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer stop()

	if err := notifier.Publish(ctx, Change{UnitID: "u1", RequestID: "r1", Kind: ChangeUpdated, Version: 2}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case change := <-changes:
		if change.RequestID != "r1" || change.Version != 2 {
			t.Errorf("unexpected change %+v", change)
		}
		if change.At.IsZero() {
			t.Error("expected publish time to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func TestRedisRevisionCountsPublishes(t *testing.T) {
	notifier, _ := setupTestRedis(t)
	ctx := context.Background()

	rev, err := notifier.Revision(ctx, "u1")
	if err != nil || rev != 0 {
		t.Fatalf("Revision() = %d, %v", rev, err)
	}
	for i := 0; i < 3; i++ {
		if err := notifier.Publish(ctx, Change{UnitID: "u1", Kind: ChangeCreated}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	_ = notifier.Publish(ctx, Change{UnitID: "u2", Kind: ChangeCreated})

	rev, err = notifier.Revision(ctx, "u1")
	if err != nil || rev != 3 {
		t.Fatalf("Revision() = %d, %v", rev, err)
	}
}

func TestRedisListenerIsolation(t *testing.T) {
	notifier, _ := setupTestRedis(t)
	ctx := context.Background()

	changes, stop, err := notifier.Listen(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	_ = notifier.Publish(ctx, Change{UnitID: "u2", RequestID: "other"})
	select {
	case change := <-changes:
		t.Fatalf("received change for another unit: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalNotifierCoalescesBursts(t *testing.T) {
	notifier := NewLocalNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, stop, _ := notifier.Listen(ctx, "u1")
	defer stop()
	for v := 1; v <= 5; v++ {
		_ = notifier.Publish(ctx, Change{UnitID: "u1", Version: v})
	}

	change := <-changes
	if change.Version != 5 {
		t.Fatalf("expected latest change, got version %d", change.Version)
	}
	select {
	case extra := <-changes:
		t.Fatalf("unexpected extra change %+v", extra)
	default:
	}
}
