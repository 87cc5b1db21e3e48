package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
)

// Metrics records HTTPRequestDuration for every request, labeled by chi's
// matched route pattern (not the raw path, which would blow up label
// cardinality on vid-parameterized routes) and the response status.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(wrapped.status)).Observe(time.Since(start).Seconds())
	})
}
