package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
)

// Master handles GET /video/{vid}.m3u8 — the rewritten HLS master
// playlist, with every variant line pointed at this proxy's sub-playlist
// route.
func (h *Handlers) Master(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")

	body, err := h.Playlists.Master(r.Context(), vid)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "public,max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write([]byte(body))
	h.record(r, vid, model.EventStreamServed, 0)
}

// Index handles GET /video/{vid}/{list}.m3u8 — the rewritten sub-playlist,
// with every segment line pointed at this proxy's segment route and a
// background prefetch dispatched for each one.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	list := chi.URLParam(r, "list")

	body, err := h.Playlists.Index(r.Context(), vid, list)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "public,max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write([]byte(body))
	h.record(r, vid, model.EventStreamServed, 0)
}

// Segment handles GET /video/{vid}/{uid}.ts — the bytes of a segment the
// sub-playlist route already dispatched a prefetch for.
func (h *Handlers) Segment(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	uid := chi.URLParam(r, "uid")

	data, err := h.Playlists.Segment(uid)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "public,max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
	h.record(r, vid, model.EventSegmentServed, 0)
}
