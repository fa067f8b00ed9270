package audit

import (
	"log"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lumenfoto/fotoaccess/config"
	"github.com/lumenfoto/fotoaccess/services/logging"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Actions emitted by this module. Callers may log their own action names;
// these are the ones the core emits itself.
const (
	ActionTokenResolved     = "access_token_resolved"
	ActionTokenHydrated     = "access_token_hydrated"
	ActionTokenMiss         = "access_token_miss"
	ActionAuthFailure       = "auth_failure"
	ActionRateLimitExceeded = "rate_limit_exceeded"
	ActionShareViewRecorded = "share_view_recorded"
)

type Service struct {
	logger  *logging.Service
	enabled bool
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	enabled := true
	if cfg != nil {
		enabled = cfg.Audit.Enabled
	}

	return &Service{
		logger:  logger,
		enabled: enabled,
	}
}

// LogEvent is fire-and-forget: it masks sensitive metadata and emits a
// structured entry. It never returns an error and never panics; a failing
// sink degrades to a plain stdlib log line.
func (s *Service) LogEvent(action string, metadata map[string]any, severity Severity) {
	if s == nil || !s.enabled {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("audit: failed to log event %q: %v", action, r)
		}
	}()

	severity = floorSeverity(action, severity)
	masked := MaskMetadata(metadata)

	fields := []zap.Field{
		zap.String("action", action),
		zap.String("severity", string(severity)),
		zap.Any("metadata", masked),
	}

	switch severity {
	case SeverityError:
		s.logger.Error("security event", fields...)
	case SeverityWarning:
		s.logger.Warn("security event", fields...)
	default:
		s.logger.Info("security event", fields...)
	}
}

// Rate-limit and auth-failure events are never logged below warning.
func floorSeverity(action string, severity Severity) Severity {
	if severity != SeverityInfo {
		return severity
	}
	if strings.Contains(action, "rate_limit") || strings.Contains(action, "auth_fail") {
		return SeverityWarning
	}
	return severity
}

// RequestMetadata builds audit metadata from an inbound request, with the
// raw user agent summarised rather than logged verbatim.
func RequestMetadata(c echo.Context) map[string]any {
	if c == nil {
		return nil
	}

	ua := useragent.Parse(c.Request().Header.Get("User-Agent"))

	meta := map[string]any{
		"ip":     c.RealIP(),
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	}

	if ua.Name != "" {
		meta["browser"] = ua.Name
		meta["browser_version"] = ua.Version
	}
	if ua.OS != "" {
		meta["os"] = ua.OS
	}
	if ua.Bot {
		meta["bot"] = true
	}

	return meta
}
