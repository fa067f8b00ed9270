package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lumenfoto/fotoaccess/services/logging"
)

func newTestMiddlewareLimiter(profiles map[Profile]Config) *Limiter {
	return NewLimiterWithProfiles(newMemoryStoreForTest(), newTrackerWithoutPurge(), &captureSink{}, logging.NewNop(), profiles)
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/gallery/abc", nil)
	req.Header.Set("x-forwarded-for", "203.0.113.9")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := mw(handler)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestMiddleware(t *testing.T) {
	profiles := map[Profile]Config{
		ProfilePublicAPI: {Window: time.Minute, MaxAttempts: 2, BlockDuration: time.Minute, Message: "slow down"},
	}

	limiter := newTestMiddlewareLimiter(profiles)
	mw := Middleware(limiter, Options{Profile: ProfilePublicAPI})
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	rec := doRequest(t, mw, ok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("expected limit header 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("expected remaining header 1, got %q", got)
	}

	doRequest(t, mw, ok)

	rec = doRequest(t, mw, ok)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "Rate limit exceeded" {
		t.Errorf("expected error field, got %q", body.Error)
	}
	if body.Message != "slow down" {
		t.Errorf("expected profile message, got %q", body.Message)
	}
	if body.Limit != 2 {
		t.Errorf("expected limit 2, got %d", body.Limit)
	}
	if _, err := time.Parse(time.RFC3339, body.Reset); err != nil {
		t.Errorf("expected RFC3339 reset, got %q: %v", body.Reset, err)
	}
}

func TestMiddlewareSkipSuccessful(t *testing.T) {
	profiles := map[Profile]Config{
		ProfileGalleryAccess: {Window: time.Minute, MaxAttempts: 2, BlockDuration: time.Minute, SkipSuccessfulRequests: true},
	}

	limiter := newTestMiddlewareLimiter(profiles)
	mw := Middleware(limiter, Options{Profile: ProfileGalleryAccess})
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	// successful requests are refunded, so many more than MaxAttempts pass
	for i := range 10 {
		rec := doRequest(t, mw, ok)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	// failures are not refunded and eventually block
	fail := func(c echo.Context) error { return c.String(http.StatusNotFound, "missing") }
	denied := false
	for range 4 {
		rec := doRequest(t, mw, fail)
		if rec.Code == http.StatusTooManyRequests {
			denied = true
			break
		}
	}
	if !denied {
		t.Error("expected repeated failures to trip the limit")
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter := NewLimiter(newMemoryStoreForTest(), newTrackerWithoutPurge(), &captureSink{}, logging.NewNop())
	mw := Middleware(limiter, Options{Profile: Profile("bogus")})
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	rec := doRequest(t, mw, ok)
	if rec.Code != http.StatusOK {
		t.Errorf("expected fail-open 200, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	e := echo.New()

	newCtx := func(headers map[string]string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return e.NewContext(req, httptest.NewRecorder())
	}

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded-for single", map[string]string{"x-forwarded-for": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded-for chain takes first", map[string]string{"x-forwarded-for": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"real-ip fallback", map[string]string{"x-real-ip": "198.51.100.1"}, "198.51.100.1"},
		{"cloudflare fallback", map[string]string{"cf-connecting-ip": "192.0.2.7"}, "192.0.2.7"},
		{"forwarded-for wins over real-ip", map[string]string{"x-forwarded-for": "203.0.113.9", "x-real-ip": "198.51.100.1"}, "203.0.113.9"},
		{"no headers", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(newCtx(tt.headers)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestKeyGenerators(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/gallery/abc", nil)
	req.Header.Set("x-forwarded-for", "203.0.113.9")
	req.Header.Set("User-Agent", "test-agent")
	c := e.NewContext(req, httptest.NewRecorder())

	t.Run("default key includes prefix ip and path", func(t *testing.T) {
		key := DefaultKeyGenerator("rate_limit")(c)
		want := "rate_limit:203.0.113.9:" + simpleHash("test-agent") + ":/gallery/abc"
		if key != want {
			t.Errorf("expected %q, got %q", want, key)
		}
	})

	t.Run("email key", func(t *testing.T) {
		gen := EmailKeyGenerator(func(echo.Context) string { return "Parent@Example.com" })
		if key := gen(c); key != "email:parent@example.com" {
			t.Errorf("unexpected key %q", key)
		}
	})

	t.Run("email key falls back without email", func(t *testing.T) {
		gen := EmailKeyGenerator(func(echo.Context) string { return "" })
		if key := gen(c); key == "" || key == "email:" {
			t.Errorf("expected fallback key, got %q", key)
		}
	})
}
