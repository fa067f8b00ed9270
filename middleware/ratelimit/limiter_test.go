package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
)

type sinkEvent struct {
	action   string
	severity audit.Severity
}

type captureSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *captureSink) LogEvent(action string, metadata map[string]any, severity audit.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{action: action, severity: severity})
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestLimiter() (*Limiter, *MemoryStore, *captureSink) {
	store := newMemoryStoreForTest()
	sink := &captureSink{}
	limiter := NewLimiter(store, newTrackerWithoutPurge(), sink, logging.NewNop())
	return limiter, store, sink
}

func TestCheckLimitWindow(t *testing.T) {
	ctx := context.Background()
	limiter, _, sink := newTestLimiter()
	cfg := Config{Window: time.Second, MaxAttempts: 5, BlockDuration: 5 * time.Second}

	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		result, err := limiter.CheckLimit(ctx, "key", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if result.Remaining != wantRemaining {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, wantRemaining, result.Remaining)
		}
	}

	result, err := limiter.CheckLimit(ctx, "key", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Error("6th request: expected denial")
	}
	if !result.Blocked {
		t.Error("6th request: expected blocked flag")
	}
	if result.BlockUntil.IsZero() {
		t.Error("6th request: expected block deadline")
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 audit event on block transition, got %d", sink.count())
	}
}

func TestBlockOutlastsWindow(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter()
	cfg := Config{Window: time.Second, MaxAttempts: 5, BlockDuration: 5 * time.Second}

	// window elapsed long ago, block still active
	now := time.Now()
	store.Set(ctx, "key", Entry{
		Count:        6,
		WindowStart:  now.Add(-time.Minute),
		BlockedUntil: now.Add(3 * time.Second),
		LastAttempt:  now.Add(-time.Minute),
	})

	result, err := limiter.CheckLimit(ctx, "key", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed || !result.Blocked {
		t.Error("expected active block to deny despite elapsed window")
	}
}

func TestExpiredBlockResetsWindow(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter()
	cfg := Config{Window: time.Second, MaxAttempts: 5, BlockDuration: 5 * time.Second}

	now := time.Now()
	store.Set(ctx, "key", Entry{
		Count:        6,
		WindowStart:  now.Add(-time.Minute),
		BlockedUntil: now.Add(-time.Second),
		LastAttempt:  now.Add(-time.Minute),
	})

	result, err := limiter.CheckLimit(ctx, "key", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected fresh window after block expiry")
	}
	if result.Remaining != cfg.MaxAttempts-1 {
		t.Errorf("expected remaining %d, got %d", cfg.MaxAttempts-1, result.Remaining)
	}
}

func TestMarkSuccess(t *testing.T) {
	ctx := context.Background()
	limiter, store, _ := newTestLimiter()
	cfg := Config{Window: time.Minute, MaxAttempts: 5, BlockDuration: time.Minute, SkipSuccessfulRequests: true}

	limiter.CheckLimit(ctx, "key", cfg)
	limiter.CheckLimit(ctx, "key", cfg)

	if err := limiter.MarkSuccess(ctx, "key", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, _ := store.Get(ctx, "key")
	if entry.Count != 1 {
		t.Errorf("expected count 1 after refund, got %d", entry.Count)
	}

	t.Run("floors at zero", func(t *testing.T) {
		limiter.MarkSuccess(ctx, "key", cfg)
		limiter.MarkSuccess(ctx, "key", cfg)

		entry, _ := store.Get(ctx, "key")
		if entry.Count != 0 {
			t.Errorf("expected count 0, got %d", entry.Count)
		}
	})

	t.Run("no-op without skip flag", func(t *testing.T) {
		plain := Config{Window: time.Minute, MaxAttempts: 5, BlockDuration: time.Minute}
		limiter.CheckLimit(ctx, "other", plain)

		limiter.MarkSuccess(ctx, "other", plain)

		entry, _ := store.Get(ctx, "other")
		if entry.Count != 1 {
			t.Errorf("expected count unchanged at 1, got %d", entry.Count)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if err := limiter.MarkSuccess(ctx, "never-seen", cfg); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestCheckProfileAdaptive(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter()

	base, err := limiter.ProfileConfig(ProfileTokenValidation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.MaxAttempts != 10 {
		t.Fatalf("expected base max attempts 10, got %d", base.MaxAttempts)
	}

	for range 3 {
		limiter.Tracker().TrackAuthFailure("203.0.113.9", "")
	}

	// with limits halved to 5, the 6th attempt must block
	var result Result
	for range 6 {
		result, err = limiter.CheckProfile(ctx, "key", "203.0.113.9", ProfileTokenValidation)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if result.Allowed {
		t.Error("expected 6th attempt to be denied under halved limit")
	}
	if result.Limit != 5 {
		t.Errorf("expected effective limit 5, got %d", result.Limit)
	}
}

func TestCheckProfileUnknown(t *testing.T) {
	limiter, _, _ := newTestLimiter()

	_, err := limiter.CheckProfile(context.Background(), "key", "id", Profile("bogus"))
	if err == nil {
		t.Error("expected error for unknown profile")
	}
}
