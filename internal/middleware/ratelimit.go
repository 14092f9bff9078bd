package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xerud2002/Dos/internal/limiter"
)

const throttledMessage = "Too many requests. Please try again later."

type RateLimitMiddleware struct {
	limiter *limiter.Limiter
	logger  *slog.Logger
	warn    *rate.Sometimes
}

func NewRateLimitMiddleware(l *limiter.Limiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: l,
		logger:  logger,
		warn:    &rate.Sometimes{First: 1, Interval: time.Second},
	}
}

// Limit charges every request against the window of class for the calling IP
// and answers 429 once the window is exhausted.
func (m *RateLimitMiddleware) Limit(class limiter.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)

			v := m.limiter.Check(class, clientIP)

			m.setRateLimitHeaders(w, v)

			if !v.Allowed {
				m.warn.Do(func() {
					m.logger.Warn("rate limit exceeded",
						"client", clientIP,
						"class", v.Class,
						"retry_after", v.RetryAfterSeconds(),
						"path", r.URL.Path,
					)
				})

				m.sendRateLimitError(w, v)
				return
			}

			m.logger.Debug("request allowed",
				"client", clientIP,
				"class", v.Class,
				"remaining", v.Remaining,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP takes the first X-Forwarded-For entry, then X-Real-IP, and falls
// back to the shared loopback key.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	return limiter.FallbackClientKey
}

func (m *RateLimitMiddleware) setRateLimitHeaders(w http.ResponseWriter, v limiter.Verdict) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(v.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining))
}

type throttledResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

func (m *RateLimitMiddleware) sendRateLimitError(w http.ResponseWriter, v limiter.Verdict) {
	retryAfter := v.RetryAfterSeconds()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)

	if err := json.NewEncoder(w).Encode(throttledResponse{
		Error:      throttledMessage,
		RetryAfter: retryAfter,
	}); err != nil {
		m.logger.Error("failed to encode throttled response", "error", err)
	}
}
