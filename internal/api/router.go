package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/vidproxy/internal/api/handler"
	"github.com/hszk-dev/vidproxy/internal/api/middleware"
	"github.com/hszk-dev/vidproxy/internal/ratelimiter"
)

// NewRouter wires every route from the external interface design. limiter
// may be nil, in which case the rate-limit middleware is skipped entirely
// (fail-open zero-config case).
func NewRouter(h *handler.Handlers, limiter *ratelimiter.Limiter, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	r.Get("/", h.Root)
	r.Post("/echo", h.Echo)
	r.Get("/healthz", handler.Health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/video", func(r chi.Router) {
		r.Get("/{vid:[\\w\\-]{6,15}}.json", h.VideoInfo)
		r.Get("/{vid:[\\w\\-]{6,15}}.{ext:jpg|webp}", h.Thumbnail)
		r.Get("/{vid:[\\w\\-]{6,15}}.{ext:webm|mp4}", h.ProgressiveByPreference)
		r.Get("/{vid:[\\w\\-]{6,15}}.m3u8", h.Master)
		r.Get("/{vid:[\\w\\-]{6,15}}/{itag:\\d+}.{ext:webm|mp4}", h.ProgressiveByItag)
		r.Get("/{vid:[\\w\\-]{6,15}}/{itag:\\d+}/{range:\\d+-\\d+}.ts", h.SegmentRange)
		r.Get("/{vid:[\\w\\-]{6,15}}/{list:[\\w]{1,8}}.m3u8", h.Index)
		r.Get("/{vid:[\\w\\-]{6,15}}/{uid:[\\w]{1,8}}.ts", h.Segment)
	})

	r.Get("/{filename}", h.Static)

	return r
}
