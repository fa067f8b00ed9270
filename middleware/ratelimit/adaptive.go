package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	failureThreshold = 3
	failureWindow    = 5 * time.Minute
	failureRetention = time.Hour
)

type activity struct {
	failures    int
	lastFailure time.Time
}

// Tracker records recent authentication failures per identifier (client IP,
// email) and tightens rate limits for identifiers that keep failing, so
// brute-force token guessing hits the block threshold sooner.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*activity
}

func NewTracker() *Tracker {
	tracker := &Tracker{
		entries: make(map[string]*activity),
	}

	go tracker.purgeLoop()

	return tracker
}

func newTrackerWithoutPurge() *Tracker {
	return &Tracker{
		entries: make(map[string]*activity),
	}
}

// TrackAuthFailure records a failure for the identifier and, when an email
// is known, for the email as well so the limit follows the account across
// addresses.
func (t *Tracker) TrackAuthFailure(identifier, email string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.record(identifier, now)
	if email != "" {
		t.record(EmailKey(email), now)
	}
}

// ResetAuthFailures clears failure state on successful authentication.
func (t *Tracker) ResetAuthFailures(identifier, email string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, identifier)
	if email != "" {
		delete(t.entries, EmailKey(email))
	}
}

func (t *Tracker) record(key string, now time.Time) {
	entry, exists := t.entries[key]
	if !exists || now.Sub(entry.lastFailure) > failureWindow {
		t.entries[key] = &activity{failures: 1, lastFailure: now}
		return
	}

	entry.failures++
	entry.lastFailure = now
}

// FailureCount returns the failures recorded for the identifier within the
// trailing failure window.
func (t *Tracker) FailureCount(identifier string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.entries[identifier]
	if !exists || time.Since(entry.lastFailure) > failureWindow {
		return 0
	}

	return entry.failures
}

// AdaptiveConfig halves MaxAttempts (floored, minimum 1) when the identifier
// has hit the failure threshold inside the trailing window.
func (t *Tracker) AdaptiveConfig(identifier string, base Config) Config {
	if t == nil || t.FailureCount(identifier) < failureThreshold {
		return base
	}

	reduced := base
	reduced.MaxAttempts = max(base.MaxAttempts/2, 1)
	reduced.Message = strings.TrimSpace(base.Message + " Limits are reduced due to recent failed attempts.")
	return reduced
}

func (t *Tracker) purgeLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		t.purge(time.Now())
	}
}

func (t *Tracker) purge(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if now.Sub(entry.lastFailure) > failureRetention {
			delete(t.entries, key)
			removed++
		}
	}

	return removed
}

// EmailKey builds the tracker/limiter key for an email identifier.
func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}
