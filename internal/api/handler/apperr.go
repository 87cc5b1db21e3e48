package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hszk-dev/vidproxy/internal/api/middleware"
	"github.com/hszk-dev/vidproxy/internal/hls"
	"github.com/hszk-dev/vidproxy/internal/resolver"
	"github.com/hszk-dev/vidproxy/internal/upstream"
)

// writeUpstreamError maps a resolver/upstream/hls error to the stable
// machine-readable codes from the error handling design and logs it with
// the request ID (§7).
func writeUpstreamError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := "upstream_unavailable"
	message := err.Error()
	status := http.StatusInternalServerError

	var playability *resolver.ErrPlayabilityDenied
	var notFound *hls.ErrNotFound
	var upstreamStatus *upstream.ErrUpstreamStatus

	switch {
	case errors.As(err, &playability):
		code = "playability_denied"
		message = playability.Reason
	case errors.As(err, &notFound):
		code = "not_found"
	case errors.As(err, &upstreamStatus):
		code = "upstream_status"
	case errors.Is(err, upstream.ErrSizeLimitExceeded):
		code = "size_limit_exceeded"
	}

	logger.Warn("request failed",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("error_code", code),
		slog.String("error", message),
	)

	Error(w, status, code, message)
}
