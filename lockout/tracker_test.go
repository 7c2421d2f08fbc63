package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewTracker(rdb, cfg), mr
}

func TestRecordFailure_ThresholdArmsLock(t *testing.T) {
	tracker, _ := newTestTracker(t, Config{Threshold: 5, LockDuration: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		locked, err := tracker.RecordFailure(ctx, "a@b.com")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if locked {
			t.Fatalf("attempt %d: locked before threshold", i+1)
		}
	}

	locked, err := tracker.RecordFailure(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !locked {
		t.Fatal("5th failure should arm the lock")
	}

	isLocked, retryAfter, err := tracker.IsLocked(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !isLocked {
		t.Fatal("expected identifier to be locked")
	}
	if retryAfter <= 0 || retryAfter > 15*time.Minute {
		t.Fatalf("retry-after out of range: %v", retryAfter)
	}
}

func TestRecordSuccess_ClearsState(t *testing.T) {
	tracker, _ := newTestTracker(t, Config{Threshold: 3, LockDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "a@b.com"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	if err := tracker.RecordSuccess(ctx, "a@b.com"); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	isLocked, _, err := tracker.IsLocked(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if isLocked {
		t.Fatal("lock should be cleared after success")
	}

	count, err := tracker.FailureCount(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("failure count should reset to 0, got %d", count)
	}
}

func TestIsLocked_AutoClearsAfterDuration(t *testing.T) {
	tracker, mr := newTestTracker(t, Config{Threshold: 2, LockDuration: time.Minute})
	ctx := context.Background()

	tracker.RecordFailure(ctx, "a@b.com")
	tracker.RecordFailure(ctx, "a@b.com")

	isLocked, _, err := tracker.IsLocked(ctx, "a@b.com")
	if err != nil || !isLocked {
		t.Fatalf("expected locked, got locked=%v err=%v", isLocked, err)
	}

	mr.FastForward(2 * time.Minute)

	isLocked, _, err = tracker.IsLocked(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if isLocked {
		t.Fatal("lock should auto-clear once the duration elapses")
	}

	count, err := tracker.FailureCount(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("counter window should also have expired, got %d", count)
	}
}

func TestRecordFailure_ConcurrentAttemptsCannotOvershoot(t *testing.T) {
	tracker, _ := newTestTracker(t, Config{Threshold: 5, LockDuration: time.Minute})
	ctx := context.Background()

	const attempts = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		armed  int
		failed int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locked, err := tracker.RecordFailure(ctx, "a@b.com")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			if locked {
				armed++
			}
		}()
	}
	wg.Wait()

	if failed != 0 {
		t.Fatalf("%d concurrent attempts errored", failed)
	}
	// Every attempt at or past the threshold must observe the lock;
	// none may slip through the increment-and-compare.
	if armed != attempts-4 {
		t.Fatalf("expected %d attempts to observe the armed lock, got %d", attempts-4, armed)
	}

	isLocked, _, err := tracker.IsLocked(ctx, "a@b.com")
	if err != nil || !isLocked {
		t.Fatalf("expected locked after concurrent failures, got locked=%v err=%v", isLocked, err)
	}
}

func TestTracker_IdentifiersAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t, Config{Threshold: 2, LockDuration: time.Minute})
	ctx := context.Background()

	tracker.RecordFailure(ctx, "a@b.com")
	tracker.RecordFailure(ctx, "a@b.com")

	isLocked, _, err := tracker.IsLocked(ctx, "c@d.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if isLocked {
		t.Fatal("unrelated identifier must not be locked")
	}
}
