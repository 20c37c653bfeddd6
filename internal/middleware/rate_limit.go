package middleware

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"character-sync/pkg/errors"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxPeekBytes = 64 << 10

// RateLimiter counts hits per key.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// KeyFunc picks the rate limit bucket of a request; "" skips limiting.
type KeyFunc func(r *http.Request) string

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(limiter RateLimiter, logger *zap.Logger, limit int, window time.Duration, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			exceeded, err := limiter.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				logger.Error("Rate limit check failed", zap.Error(err))
				WriteError(w, errors.Wrap(err, errors.ErrInternalServer))
				return
			}

			if exceeded {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				WriteError(w, errors.ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginIdentifierKey buckets login attempts by the identifier in the JSON
// body, falling back to the client address. The body is restored for the
// next handler.
func LoginIdentifierKey(r *http.Request) string {
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err == nil {
			if id := strings.TrimSpace(gjson.GetBytes(body, "identifier").String()); id != "" {
				return "login:" + strings.ToLower(id)
			}
		}
	}
	return "login-ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
