package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		require.NoError(t, err)
	})
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		requestMethod  string
		expectCORS     bool
		expectedOrigin string
	}{
		{
			name:           "wildcard echoes the origin",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://gifts.example.com",
			requestMethod:  http.MethodGet,
			expectCORS:     true,
			expectedOrigin: "https://gifts.example.com",
		},
		{
			name:           "wildcard without origin header",
			allowedOrigins: []string{"*"},
			requestMethod:  http.MethodGet,
			expectCORS:     true,
			expectedOrigin: "*",
		},
		{
			name:           "listed origin",
			allowedOrigins: []string{"https://gifts.example.com", "https://ops.example.com"},
			requestOrigin:  "https://ops.example.com",
			requestMethod:  http.MethodGet,
			expectCORS:     true,
			expectedOrigin: "https://ops.example.com",
		},
		{
			name:           "unlisted origin",
			allowedOrigins: []string{"https://gifts.example.com"},
			requestOrigin:  "https://evil.example.com",
			requestMethod:  http.MethodGet,
		},
		{
			name:           "no origins configured",
			allowedOrigins: []string{},
			requestOrigin:  "https://gifts.example.com",
			requestMethod:  http.MethodGet,
		},
		{
			name:           "preflight with listed origin",
			allowedOrigins: []string{"https://gifts.example.com"},
			requestOrigin:  "https://gifts.example.com",
			requestMethod:  http.MethodOptions,
			expectCORS:     true,
			expectedOrigin: "https://gifts.example.com",
		},
		{
			name:           "preflight with unlisted origin",
			allowedOrigins: []string{"https://gifts.example.com"},
			requestOrigin:  "https://evil.example.com",
			requestMethod:  http.MethodOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := CORSMiddleware(tt.allowedOrigins)(okHandler(t))

			req := httptest.NewRequest(tt.requestMethod, "/status", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			if tt.expectCORS {
				require.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
				require.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
				require.NotEmpty(t, w.Header().Get("Access-Control-Allow-Headers"))
				require.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			} else {
				require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}

			require.Equal(t, http.StatusOK, w.Code)
			if tt.requestMethod == http.MethodOptions {
				require.Empty(t, w.Body.String())
			} else {
				require.Equal(t, "OK", w.Body.String())
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		write  bool
	}{
		{name: "explicit ok", status: http.StatusOK},
		{name: "not found", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "implicit ok on write", status: http.StatusOK, write: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := LoggingMiddleware(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.write {
					_, _ = w.Write([]byte("body"))
					return
				}
				w.WriteHeader(tt.status)
			}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backfill", nil))

			require.Equal(t, tt.status, w.Code)
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	wrapped.WriteHeader(http.StatusAccepted)
	wrapped.WriteHeader(http.StatusBadRequest)

	require.Equal(t, http.StatusAccepted, wrapped.statusCode)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
	}{
		{name: "string", payload: "boom"},
		{name: "error", payload: assert.AnError},
		{name: "integer", payload: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := RecoveryMiddleware(logger.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.payload)
			}))

			w := httptest.NewRecorder()
			require.NotPanics(t, func() {
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
			})

			require.Equal(t, http.StatusInternalServerError, w.Code)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, http.StatusInternalServerError, resp.Code)
			require.Equal(t, "internal error", resp.Message)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(60, time.Minute, 2)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"), "burst exhausted")

	// other clients have their own bucket
	require.True(t, rl.Allow("10.0.0.2"))

	// one request per second refills
	now = now.Add(time.Second)
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
	require.Equal(t, 2, rl.Len())

	// idle buckets are swept
	now = now.Add(limiterTTL + time.Minute)
	require.True(t, rl.Allow("10.0.0.3"))
	require.Equal(t, 1, rl.Len())
}

func TestRateLimiter_BurstCappedAtWindowBudget(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(3, time.Hour, 50)
	rl.now = func() time.Time { return now }

	allowed := 0
	for range 10 {
		if rl.Allow("10.0.0.1") {
			allowed++
		}
	}
	require.Equal(t, 3, allowed)

	// one token every twenty minutes
	now = now.Add(21 * time.Minute)
	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Hour, 1)
	h := RateLimitMiddleware(rl, logger.NewNopLogger())(okHandler(t))

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.10:40000"
	h.ServeHTTP(first, req)
	require.Equal(t, http.StatusOK, first.Code)

	// a new source port is the same client
	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.10:40001"
	h.ServeHTTP(second, req)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "1", second.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestGuard_Protect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		security   config.SecurityConfig
		remoteAddr string
		auth       string
		wantStatus int
	}{
		{
			name:       "security disabled",
			security:   config.SecurityConfig{Token: "secret"},
			remoteAddr: "203.0.113.5:1234",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid token",
			security:   config.SecurityConfig{Enabled: true, Token: "secret"},
			remoteAddr: "203.0.113.5:1234",
			auth:       "Bearer secret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			security:   config.SecurityConfig{Enabled: true, Token: "secret"},
			remoteAddr: "203.0.113.5:1234",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			security:   config.SecurityConfig{Enabled: true, Token: "secret"},
			remoteAddr: "203.0.113.5:1234",
			auth:       "Bearer secreT",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth is not a bearer token",
			security:   config.SecurityConfig{Enabled: true, Token: "secret"},
			remoteAddr: "203.0.113.5:1234",
			auth:       "Basic c2VjcmV0",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "address in CIDR",
			security:   config.SecurityConfig{Enabled: true, IPAllowlist: []string{"10.0.0.0/8"}},
			remoteAddr: "10.20.30.40:5555",
			wantStatus: http.StatusOK,
		},
		{
			name:       "exact address",
			security:   config.SecurityConfig{Enabled: true, IPAllowlist: []string{"127.0.0.1"}},
			remoteAddr: "127.0.0.1:5555",
			wantStatus: http.StatusOK,
		},
		{
			name:       "ipv6 exact address",
			security:   config.SecurityConfig{Enabled: true, IPAllowlist: []string{"::1"}},
			remoteAddr: "[::1]:5555",
			wantStatus: http.StatusOK,
		},
		{
			name:       "address outside allowlist",
			security:   config.SecurityConfig{Enabled: true, IPAllowlist: []string{"10.0.0.0/8", "127.0.0.1"}},
			remoteAddr: "192.168.1.1:5555",
			wantStatus: http.StatusForbidden,
		},
		{
			name: "allowlist checked before token",
			security: config.SecurityConfig{
				Enabled:     true,
				Token:       "secret",
				IPAllowlist: []string{"10.0.0.0/8"},
			},
			remoteAddr: "192.168.1.1:5555",
			auth:       "Bearer secret",
			wantStatus: http.StatusForbidden,
		},
		{
			name: "allowlist and token both pass",
			security: config.SecurityConfig{
				Enabled:     true,
				Token:       "secret",
				IPAllowlist: []string{"10.0.0.0/8"},
			},
			remoteAddr: "10.1.1.1:5555",
			auth:       "Bearer secret",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			guard, err := NewGuard(tt.security, logger.NewNopLogger())
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()

			guard.Protect(okHandler(t)).ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestNewGuard_InvalidEntry(t *testing.T) {
	t.Parallel()

	_, err := NewGuard(config.SecurityConfig{Enabled: true, IPAllowlist: []string{"localhost"}}, logger.NewNopLogger())
	require.ErrorContains(t, err, "localhost")
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		remoteAddr string
		want       string
	}{
		{remoteAddr: "192.0.2.1:8080", want: "192.0.2.1"},
		{remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{remoteAddr: "[::ffff:192.0.2.1]:8080", want: "192.0.2.1"},
		{remoteAddr: "192.0.2.1", want: "192.0.2.1"},
		{remoteAddr: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", "198.51.100.1")

			require.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestMiddlewareChaining(t *testing.T) {
	t.Parallel()

	log := logger.NewNopLogger()
	h := RecoveryMiddleware(log)(
		LoggingMiddleware(log)(
			RateLimitMiddleware(NewRateLimiter(100, time.Minute, 10), log)(
				CORSMiddleware([]string{"*"})(okHandler(t)),
			),
		),
	)

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Origin", "https://gifts.example.com")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
	require.Equal(t, "https://gifts.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
