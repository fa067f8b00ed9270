package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get non-existent key", func(t *testing.T) {
		store := newMemoryStoreForTest()

		entry, err := store.Get(ctx, "non-existent")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry != nil {
			t.Errorf("expected nil entry, got %+v", entry)
		}
	})

	t.Run("Set and Get", func(t *testing.T) {
		store := newMemoryStoreForTest()
		now := time.Now()

		want := Entry{Count: 3, WindowStart: now, LastAttempt: now}
		if err := store.Set(ctx, "key", want); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.Get(ctx, "key")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil {
			t.Fatal("expected entry to exist")
		}
		if got.Count != 3 {
			t.Errorf("expected count 3, got %d", got.Count)
		}
		if !got.WindowStart.Equal(now) {
			t.Errorf("expected window start %v, got %v", now, got.WindowStart)
		}
	})

	t.Run("Get returns a copy", func(t *testing.T) {
		store := newMemoryStoreForTest()
		now := time.Now()

		store.Set(ctx, "key", Entry{Count: 1, WindowStart: now})

		first, _ := store.Get(ctx, "key")
		first.Count = 99

		second, _ := store.Get(ctx, "key")
		if second.Count != 1 {
			t.Errorf("expected stored count 1, got %d", second.Count)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := newMemoryStoreForTest()

		store.Set(ctx, "key", Entry{Count: 1, WindowStart: time.Now()})
		if err := store.Delete(ctx, "key"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entry, _ := store.Get(ctx, "key")
		if entry != nil {
			t.Error("expected entry to be deleted")
		}
	})
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStoreForTest()
	now := time.Now()

	// idle past eviction age, not blocked: swept
	store.Set(ctx, "idle", Entry{Count: 1, LastAttempt: now.Add(-2 * time.Hour)})
	// idle past eviction age but still serving a block: kept
	store.Set(ctx, "blocked", Entry{
		Count:        10,
		LastAttempt:  now.Add(-2 * time.Hour),
		BlockedUntil: now.Add(time.Hour),
	})
	// recently touched: kept
	store.Set(ctx, "fresh", Entry{Count: 1, LastAttempt: now})

	removed := store.sweep(now)
	if removed != 1 {
		t.Errorf("expected 1 entry swept, got %d", removed)
	}
	if store.len() != 2 {
		t.Errorf("expected 2 entries remaining, got %d", store.len())
	}

	if entry, _ := store.Get(ctx, "blocked"); entry == nil {
		t.Error("expected blocked entry to survive the sweep")
	}
	if entry, _ := store.Get(ctx, "idle"); entry != nil {
		t.Error("expected idle entry to be swept")
	}
}

func TestEntryBlocked(t *testing.T) {
	now := time.Now()

	if (Entry{}).Blocked(now) {
		t.Error("zero BlockedUntil must not count as blocked")
	}
	if !(Entry{BlockedUntil: now.Add(time.Minute)}).Blocked(now) {
		t.Error("future BlockedUntil must count as blocked")
	}
	if (Entry{BlockedUntil: now.Add(-time.Minute)}).Blocked(now) {
		t.Error("past BlockedUntil must not count as blocked")
	}
}

// newMemoryStoreForTest builds a store without relying on the background
// sweeper for determinism.
func newMemoryStoreForTest() *MemoryStore {
	return &MemoryStore{
		data:          make(map[string]Entry),
		sweepInterval: 5 * time.Minute,
		idleEviction:  time.Hour,
	}
}
