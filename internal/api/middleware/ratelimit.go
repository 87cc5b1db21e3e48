package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
	"github.com/hszk-dev/vidproxy/internal/ratelimiter"
)

// RateLimit gates every request through limiter, keyed by the first
// X-Forwarded-For entry or, without that header, the host part of the
// remote address, before any upstream call or cache lookup can happen. A denied
// request never reaches load_or_store, so it can't become a single-flight
// leader or follower.
func RateLimit(limiter *ratelimiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), rateLimitKey(r), time.Now())
			if err != nil {
				// Fail open: a broken limiter backend must never take the
				// proxy down with it.
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.RateLimitDenied).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
				return
			}

			metrics.RateLimitDecisionsTotal.WithLabelValues(metrics.RateLimitAllowed).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
