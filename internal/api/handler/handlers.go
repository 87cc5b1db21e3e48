// Package handler implements the proxy's HTTP surface: each exported method
// on Handlers is a chi route handler; shared plumbing (error mapping,
// itag preference, analytics) lives alongside them.
package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hszk-dev/vidproxy/internal/domain/repository"
	"github.com/hszk-dev/vidproxy/internal/hls"
	"github.com/hszk-dev/vidproxy/internal/resolver"
	"github.com/hszk-dev/vidproxy/internal/upstream"
	"github.com/hszk-dev/vidproxy/internal/usecase"
)

// DefaultItagPreference is the itag preference list consulted after a
// client's "prefer" list (or alone when there is none), first match wins.
var DefaultItagPreference = []int{
	18, 59, 22, 37, 243, 134, 396, 244, 135, 397, 247, 136, 302, 398, 248, 137, 242, 133, 395, 278, 598, 160, 597,
}

// Handlers bundles the proxy's HTTP handlers and their shared dependencies.
type Handlers struct {
	Resolver        *resolver.Resolver
	Playlists       *hls.Playlists
	Upstream        *upstream.Client
	UpstreamBaseURL string
	Events          *usecase.EventPublisher
	Storage         repository.ObjectStorage
	PublicPath      string
	PublicDir       string
	ItagPrefer      []int
	Logger          *slog.Logger
}

// NewHandlers creates a Handlers. storage may be nil, in which case the
// static route falls back to PublicDir.
func NewHandlers(r *resolver.Resolver, pl *hls.Playlists, up *upstream.Client, upstreamBaseURL string, events *usecase.EventPublisher, storage repository.ObjectStorage, publicPath, publicDir string, logger *slog.Logger) *Handlers {
	return &Handlers{
		Resolver:        r,
		Playlists:       pl,
		Upstream:        up,
		UpstreamBaseURL: upstreamBaseURL,
		Events:          events,
		Storage:         storage,
		PublicPath:      publicPath,
		PublicDir:       publicDir,
		ItagPrefer:      DefaultItagPreference,
		Logger:          logger,
	}
}

// Root handles GET / — a liveness probe.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write([]byte("Hello world!"))
}

// Echo handles POST /echo — returns the request body verbatim.
func (h *Handlers) Echo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = io.Copy(w, r.Body)
}

// clientIP extracts the caller's IP for rate limiting and analytics,
// preferring a proxy-set X-Forwarded-For entry over RemoteAddr.
func clientIP(r *http.Request) string {
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

// record publishes a playback analytics event for the given video/itag,
// never blocking or failing the caller (see usecase.EventPublisher).
func (h *Handlers) record(r *http.Request, vid, kind string, itag int) {
	if h.Events == nil {
		return
	}
	h.Events.Publish(vid, kind, clientIP(r), r.UserAgent(), itag)
}
