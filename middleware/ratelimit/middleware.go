package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Options struct {
	Profile      Profile
	KeyPrefix    string
	KeyGenerator func(c echo.Context) string
	Identifier   func(c echo.Context) string
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset"`
}

// Middleware rejects requests over the profile's limit with a 429 before
// they reach the handler. A store failure fails open: abuse deterrence is
// not worth taking the gallery down when redis is unreachable.
func Middleware(limiter *Limiter, opts Options) echo.MiddlewareFunc {
	if opts.Profile == "" {
		opts.Profile = ProfilePublicAPI
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rate_limit"
	}

	if opts.KeyGenerator == nil {
		opts.KeyGenerator = DefaultKeyGenerator(opts.KeyPrefix)
	}

	if opts.Identifier == nil {
		opts.Identifier = ClientIP
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := opts.KeyGenerator(c)
			ctx := c.Request().Context()

			result, err := limiter.CheckProfile(ctx, key, opts.Identifier(c), opts.Profile)
			if err != nil {
				limiter.logger.Warn("rate-limit check failed, allowing request",
					zap.String("key", key),
					zap.Error(err))
				return next(c)
			}

			setHeaders(c, result)

			if !result.Allowed {
				retryAfter := int(math.Ceil(time.Until(result.ResetTime).Seconds()))
				if retryAfter < 0 {
					retryAfter = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))

				return c.JSON(http.StatusTooManyRequests, errorResponse{
					Error:     "Rate limit exceeded",
					Message:   result.Message,
					Limit:     result.Limit,
					Remaining: result.Remaining,
					Reset:     result.ResetTime.UTC().Format(time.RFC3339),
				})
			}

			err = next(c)

			if err == nil && c.Response().Status < 400 {
				cfg, cfgErr := limiter.ProfileConfig(opts.Profile)
				if cfgErr == nil && cfg.SkipSuccessfulRequests {
					if markErr := limiter.MarkSuccess(ctx, key, cfg); markErr != nil {
						limiter.logger.Warn("failed to refund successful request",
							zap.String("key", key),
							zap.Error(markErr))
					}
				}
			}

			return err
		}
	}
}

func setHeaders(c echo.Context, result Result) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}

// DefaultKeyGenerator keys on client IP, a user-agent hash and the request
// path, so distinct endpoints get independent windows.
func DefaultKeyGenerator(prefix string) func(c echo.Context) string {
	return func(c echo.Context) string {
		ip := ClientIP(c)
		uaHash := simpleHash(c.Request().Header.Get("User-Agent"))

		return fmt.Sprintf("%s:%s:%s:%s", prefix, ip, uaHash, c.Request().URL.Path)
	}
}

// EmailKeyGenerator keys authentication endpoints on the submitted email so
// an attacker rotating IPs still trips the limit for the targeted account.
func EmailKeyGenerator(extract func(c echo.Context) string) func(c echo.Context) string {
	return func(c echo.Context) string {
		email := extract(c)
		if email == "" {
			return DefaultKeyGenerator("rate_limit")(c)
		}
		return EmailKey(email)
	}
}

// ClientIP resolves the caller address from proxy headers, first entry of
// x-forwarded-for first, then x-real-ip, then cf-connecting-ip.
func ClientIP(c echo.Context) string {
	header := c.Request().Header

	if forwarded := header.Get("x-forwarded-for"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}

	if realIP := header.Get("x-real-ip"); realIP != "" {
		return realIP
	}

	if cfIP := header.Get("cf-connecting-ip"); cfIP != "" {
		return cfIP
	}

	return "unknown"
}

func simpleHash(s string) string {
	if len(s) == 0 {
		return "none"
	}

	hash := uint32(0)
	for _, c := range s {
		hash = hash*31 + uint32(c)
	}

	return fmt.Sprintf("%x", hash%0xFFFFFF)
}
