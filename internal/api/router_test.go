package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproxy/internal/api/handler"
	"github.com/hszk-dev/vidproxy/internal/cachemap"
	"github.com/hszk-dev/vidproxy/internal/hls"
	"github.com/hszk-dev/vidproxy/internal/ratelimiter"
	"github.com/hszk-dev/vidproxy/internal/resolver"
	"github.com/hszk-dev/vidproxy/internal/upstream"
	"github.com/hszk-dev/vidproxy/internal/usecase"
)

type fakePlayerFetcher struct{}

func (fakePlayerFetcher) GetPlayer(ctx context.Context, vid string) (map[string]any, error) {
	return map[string]any{
		"playabilityStatus": map[string]any{"status": "OK"},
		"videoDetails":      map[string]any{"title": "t", "isLive": false},
		"streamingData":     map[string]any{"formats": []any{}},
	}, nil
}

func newTestHandlers(t *testing.T) *handler.Handlers {
	t.Helper()
	cacheJSON := cachemap.New[any]()
	cacheData := cachemap.New[[]byte]()
	client := upstream.NewClient(upstream.NewHTTPClient(), upstream.DefaultConfig(""))
	res := resolver.New(fakePlayerFetcher{}, cacheJSON)
	pipeline := hls.NewPipeline(cacheData, client)
	playlists := hls.NewPlaylists(res, cacheData, client, pipeline)
	return handler.NewHandlers(res, playlists, client, "", usecase.NewEventPublisher(nil, slog.Default()), nil, "/public", t.TempDir(), slog.Default())
}

func TestRouter_HealthzAndMetricsAreReachable(t *testing.T) {
	r := NewRouter(newTestHandlers(t), nil, slog.Default())

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRouter_VideoInfoRouteDispatches(t *testing.T) {
	r := NewRouter(newTestHandlers(t), nil, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/video/abc123xyz.json", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
}

func TestRouter_UnmatchedVideoExtensionIs404(t *testing.T) {
	r := NewRouter(newTestHandlers(t), nil, slog.Default())

	// ".mov" isn't one of the video sub-routes' regex alternatives, so
	// nothing under /video matches it.
	req := httptest.NewRequest(http.MethodGet, "/video/abc123xyz.mov", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (no /video route matches)", rec.Code)
	}
}

func TestRouter_NilLimiterSkipsRateLimitMiddleware(t *testing.T) {
	r := NewRouter(newTestHandlers(t), nil, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with no rate limiter configured", rec.Code)
	}
}

func TestRouter_RateLimiterDeniesOverLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()
	limiter := ratelimiter.New(redisClient, 1, time.Minute)

	r := NewRouter(newTestHandlers(t), limiter, slog.Default())

	req := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		return req
	}

	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req())
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req())
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec2.Code)
	}
}
