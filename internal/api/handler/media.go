package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
	"github.com/hszk-dev/vidproxy/internal/hls"
	"github.com/hszk-dev/vidproxy/internal/resolver"
	"github.com/hszk-dev/vidproxy/internal/upstream"
)

const (
	thumbnailSizeLimit   = 2 << 20
	progressiveSizeLimit = 100 << 20
	rangeSizeLimit       = 15 << 20
)

// Thumbnail handles GET /video/{vid}.{ext}, ext one of jpg/webp — a direct
// proxy onto upstream's thumbnail CDN, no resolver/cache involved.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	ext := chi.URLParam(r, "ext")

	url := fmt.Sprintf("%s/vi/%s/maxresdefault.%s", h.UpstreamBaseURL, vid, ext)
	data, header, err := h.Upstream.ReqGet(r.Context(), url, thumbnailSizeLimit, func(dst http.Header) {
		upstream.CopyForwardHeaders(dst, r.Header, true)
	})
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	writeProxied(w, data, header, true)
	h.record(r, vid, model.EventStreamServed, 0)
}

// streamURLForItag resolves vid's parsed VideoInfo and returns the stream
// URL for the given itag, or ErrNotFound-shaped error if vid has no such
// itag.
func (h *Handlers) streamURLForItag(r *http.Request, vid string, itag int) (string, error) {
	info, err := h.Resolver.Parse(r.Context(), vid)
	if err != nil {
		return "", err
	}
	item, ok := info.Streams[itag]
	if !ok {
		return "", &hls.ErrNotFound{What: fmt.Sprintf("itag %d", itag)}
	}
	return item.URL, nil
}

// ProgressiveByItag handles GET /video/{vid}/{itag}.{webm|mp4} — a
// progressive media proxy for one specific encoding.
func (h *Handlers) ProgressiveByItag(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	itag, err := strconv.Atoi(chi.URLParam(r, "itag"))
	if err != nil {
		Error(w, http.StatusBadRequest, "bad_request", "itag must be numeric")
		return
	}

	h.serveProgressive(w, r, vid, itag)
}

// ProgressiveByPreference handles GET /video/{vid}.{webm|mp4}?prefer=...,
// selecting the first itag present in vid's streams from the client's
// prefer list followed by DefaultItagPreference: the client list is
// consulted first, but a client whose preferences don't match falls
// through to the default rather than failing outright.
func (h *Handlers) ProgressiveByPreference(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")

	info, err := h.Resolver.Parse(r.Context(), vid)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	prefer := h.ItagPrefer
	if q := r.URL.Query().Get("prefer"); q != "" {
		prefer = append(parseItagList(q), h.ItagPrefer...)
	}

	itag := 0
	for _, candidate := range prefer {
		if _, ok := info.Streams[candidate]; ok {
			itag = candidate
			break
		}
	}
	if itag == 0 {
		writeUpstreamError(w, r, h.Logger, &resolver.ErrPlayabilityDenied{Reason: "no preferred itag available"})
		return
	}

	h.serveProgressive(w, r, vid, itag)
}

func (h *Handlers) serveProgressive(w http.ResponseWriter, r *http.Request, vid string, itag int) {
	streamURL, err := h.streamURLForItag(r, vid, itag)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	data, header, err := h.Upstream.ReqGet(r.Context(), streamURL, progressiveSizeLimit, func(dst http.Header) {
		upstream.CopyForwardHeaders(dst, r.Header, false)
	})
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	writeProxied(w, data, header, false)
	h.record(r, vid, model.EventStreamServed, itag)
}

// SegmentRange handles GET /video/{vid}/{itag}/{a-b}.ts — a byte-range read
// stapled onto the upstream stream URL for itag, used by players that
// fetch progressive streams in chunks.
func (h *Handlers) SegmentRange(w http.ResponseWriter, r *http.Request) {
	vid := chi.URLParam(r, "vid")
	itag, err := strconv.Atoi(chi.URLParam(r, "itag"))
	if err != nil {
		Error(w, http.StatusBadRequest, "bad_request", "itag must be numeric")
		return
	}
	rangeParam := chi.URLParam(r, "range")

	streamURL, err := h.streamURLForItag(r, vid, itag)
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	data, header, err := h.Upstream.ReqGet(r.Context(), streamURL, rangeSizeLimit, func(dst http.Header) {
		upstream.CopyForwardHeaders(dst, r.Header, true)
		dst.Set("Range", "bytes="+rangeParam)
	})
	if err != nil {
		writeUpstreamError(w, r, h.Logger, err)
		return
	}

	writeProxied(w, data, header, true)
	h.record(r, vid, model.EventSegmentServed, itag)
}

// writeProxied copies upstream's allow-listed response headers onto w and
// writes the body, choosing 206 over 200 when upstream's response carried
// a Content-Range.
func writeProxied(w http.ResponseWriter, data []byte, upstreamHeader http.Header, simple bool) {
	status := http.StatusOK
	if upstreamHeader.Get("Content-Range") != "" {
		status = http.StatusPartialContent
	}
	upstream.CopyExposeHeaders(w.Header(), upstreamHeader, simple, status)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// parseItagList parses a comma-separated list of itags, skipping any
// malformed entries.
func parseItagList(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
