package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultMaxFailures = 10

// FailureLimiter tracks failed API key attempts per client IP. Each IP may
// fail max times in a burst, refilling at max per minute.
type FailureLimiter struct {
	mu       sync.Mutex
	max      int
	limiters map[string]*rate.Limiter
}

// NewFailureLimiter creates a limiter; max <= 0 uses the default of 10.
func NewFailureLimiter(max int) *FailureLimiter {
	if max <= 0 {
		max = defaultMaxFailures
	}
	return &FailureLimiter{max: max, limiters: make(map[string]*rate.Limiter)}
}

func (fl *FailureLimiter) limiter(ip string) *rate.Limiter {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	l, ok := fl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(fl.max)), fl.max)
		fl.limiters[ip] = l
	}
	return l
}

// Blocked reports whether ip has used up its failures.
func (fl *FailureLimiter) Blocked(ip string) bool {
	return fl.limiter(ip).Tokens() < 1
}

// RecordFailure records a failed attempt from ip.
func (fl *FailureLimiter) RecordFailure(ip string) {
	fl.limiter(ip).Allow()
}

type keyContextKey struct{}

// WithKey returns a context carrying the authenticated key.
func WithKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, keyContextKey{}, key)
}

// KeyFromContext returns the key that authenticated the request, if any.
func KeyFromContext(ctx context.Context) (*APIKey, bool) {
	k, ok := ctx.Value(keyContextKey{}).(*APIKey)
	return k, ok && k != nil
}

// RequireAPIKey is middleware that validates Bearer token auth for /api/
// routes. Other routes, including /health, pass through untouched.
// Returns 401 for missing/invalid keys, 429 for rate-limited IPs.
func RequireAPIKey(apiKeys *APIKeyStore, limiter *FailureLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		limiter = NewFailureLimiter(0)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if limiter.Blocked(ip) {
			writeError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			limiter.RecordFailure(ip)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		key, err := apiKeys.Validate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if errors.Is(err, ErrInvalidKey) {
			limiter.RecordFailure(ip)
			zerolog.Ctx(r.Context()).Warn().Str("ip", ip).Msg("invalid api key")
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("validating api key")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
