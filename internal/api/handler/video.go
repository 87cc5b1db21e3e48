package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
)

// VideoInfo handles GET /video/{vid}.json — parsed, JSON-serialized
// metadata with stream URLs blanked (resolver.StreamItem.URL is
// json:"-").
func (h *Handlers) VideoInfo(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")

	info, err := h.Resolver.Parse(r.Context(), vid)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	JSON(w, http.StatusOK, info)
	h.record(r, vid, model.EventPlayerResolved, 0)
}
