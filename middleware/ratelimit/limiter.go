package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenfoto/fotoaccess/services/audit"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"go.uber.org/zap"
)

// AuditSink is the one-way event emission the limiter depends on. Its
// implementation swallows its own failures; the limiter never checks them.
type AuditSink interface {
	LogEvent(action string, metadata map[string]any, severity audit.Severity)
}

type Result struct {
	Allowed    bool
	Blocked    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	BlockUntil time.Time
	Message    string
}

type Limiter struct {
	store    Store
	tracker  *Tracker
	sink     AuditSink
	logger   *logging.Service
	profiles map[Profile]Config
}

func NewLimiter(store Store, tracker *Tracker, sink AuditSink, logger *logging.Service) *Limiter {
	return &Limiter{
		store:    store,
		tracker:  tracker,
		sink:     sink,
		logger:   logger,
		profiles: defaultProfiles(),
	}
}

func NewLimiterWithProfiles(store Store, tracker *Tracker, sink AuditSink, logger *logging.Service, profiles map[Profile]Config) *Limiter {
	limiter := NewLimiter(store, tracker, sink, logger)
	if profiles != nil {
		limiter.profiles = profiles
	}
	return limiter
}

func (l *Limiter) Tracker() *Tracker {
	return l.tracker
}

// ProfileConfig resolves a named profile to its configuration.
func (l *Limiter) ProfileConfig(profile Profile) (Config, error) {
	cfg, ok := l.profiles[profile]
	if !ok {
		return Config{}, fmt.Errorf("unknown rate-limit profile: %s", profile)
	}
	return cfg, nil
}

// CheckProfile resolves the profile, applies adaptive tightening for the
// identifier and runs the limit check for the key.
func (l *Limiter) CheckProfile(ctx context.Context, key, identifier string, profile Profile) (Result, error) {
	cfg, err := l.ProfileConfig(profile)
	if err != nil {
		return Result{}, err
	}

	cfg = l.tracker.AdaptiveConfig(identifier, cfg)
	return l.CheckLimit(ctx, key, cfg)
}

// CheckLimit runs one fixed-window check for the key. An active block is
// honoured before any window arithmetic so the block duration cannot be
// bypassed by window rollover. Exceeding MaxAttempts starts a block.
func (l *Limiter) CheckLimit(ctx context.Context, key string, cfg Config) (Result, error) {
	now := time.Now()

	stored, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("rate-limit store read failed: %w", err)
	}

	entry := Entry{WindowStart: now}
	if stored != nil {
		entry = *stored
	}

	if entry.Blocked(now) {
		entry.LastAttempt = now
		if err := l.store.Set(ctx, key, entry); err != nil {
			return Result{}, fmt.Errorf("rate-limit store write failed: %w", err)
		}

		return Result{
			Blocked:    true,
			Limit:      cfg.MaxAttempts,
			ResetTime:  entry.BlockedUntil,
			BlockUntil: entry.BlockedUntil,
			Message:    cfg.Message,
		}, nil
	}

	if now.Sub(entry.WindowStart) >= cfg.Window {
		entry.Count = 0
		entry.WindowStart = now
		entry.BlockedUntil = time.Time{}
	}

	entry.Count++
	entry.LastAttempt = now

	if entry.Count > cfg.MaxAttempts {
		entry.BlockedUntil = now.Add(cfg.BlockDuration)
		if err := l.store.Set(ctx, key, entry); err != nil {
			return Result{}, fmt.Errorf("rate-limit store write failed: %w", err)
		}

		l.emitBlock(key, cfg, entry)

		return Result{
			Blocked:    true,
			Limit:      cfg.MaxAttempts,
			ResetTime:  entry.BlockedUntil,
			BlockUntil: entry.BlockedUntil,
			Message:    cfg.Message,
		}, nil
	}

	if err := l.store.Set(ctx, key, entry); err != nil {
		return Result{}, fmt.Errorf("rate-limit store write failed: %w", err)
	}

	return Result{
		Allowed:   true,
		Limit:     cfg.MaxAttempts,
		Remaining: cfg.MaxAttempts - entry.Count,
		ResetTime: entry.WindowStart.Add(cfg.Window),
		Message:   cfg.Message,
	}, nil
}

// MarkSuccess refunds one attempt for profiles that only count failures.
// The count never goes below zero.
func (l *Limiter) MarkSuccess(ctx context.Context, key string, cfg Config) error {
	if !cfg.SkipSuccessfulRequests {
		return nil
	}

	stored, err := l.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("rate-limit store read failed: %w", err)
	}
	if stored == nil {
		return nil
	}

	entry := *stored
	if entry.Count > 0 {
		entry.Count--
	}

	if err := l.store.Set(ctx, key, entry); err != nil {
		return fmt.Errorf("rate-limit store write failed: %w", err)
	}

	return nil
}

func (l *Limiter) emitBlock(key string, cfg Config, entry Entry) {
	if l.sink != nil {
		l.sink.LogEvent(audit.ActionRateLimitExceeded, map[string]any{
			"key":           key,
			"count":         entry.Count,
			"max_attempts":  cfg.MaxAttempts,
			"blocked_until": entry.BlockedUntil,
		}, audit.SeverityWarning)
	}

	l.logger.Warn("rate limit exceeded",
		zap.String("key", key),
		zap.Int("count", entry.Count),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Time("blocked_until", entry.BlockedUntil))
}
