package handler

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidproxy/internal/domain/repository"
)

// Static handles GET /{filename} — serves a file out of object storage
// (keyed by PUBLIC_PATH/filename) when configured, falling back to the
// local PublicDir so the zero-dependency case still works.
func (h *Handlers) Static(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || strings.Contains(filename, "..") {
		Error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")

	if h.Storage != nil {
		key := path.Join(h.PublicPath, filename)
		rc, err := h.Storage.Download(r.Context(), key)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				Error(w, http.StatusNotFound, "not_found", "file not found")
				return
			}
			writeUpstreamError(w, r, h.Logger, err)
			return
		}
		defer rc.Close()

		_, _ = io.Copy(w, rc)
		return
	}

	http.ServeFile(w, r, path.Join(h.PublicDir, filename))
}
