// Package usecase holds the thin application-layer glue between the proxy's
// handlers and its infrastructure clients; for this service that is limited
// to fire-and-forget analytics publishing; the cache/resolve/prefetch path
// itself has no use for a usecase layer and calls cachemap/resolver/hls
// directly.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
	"github.com/hszk-dev/vidproxy/internal/domain/repository"
)

// EventPublisher records playback events without letting queue trouble slow
// or fail the request that triggered them.
type EventPublisher struct {
	queue  repository.EventQueue
	logger *slog.Logger
}

// NewEventPublisher creates an EventPublisher. A nil queue makes Publish a
// no-op, which lets handlers run in tests or degraded deployments without a
// broker.
func NewEventPublisher(queue repository.EventQueue, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{queue: queue, logger: logger}
}

// Publish records a playback event on a short-lived detached context so a
// slow broker never holds up the caller. Failures are logged, never
// returned: analytics loss is not a serving error.
func (p *EventPublisher) Publish(vid, kind, clientIP, userAgent string, itag int) {
	if p.queue == nil {
		return
	}

	event := model.NewPlaybackEvent(vid, kind, clientIP, userAgent, itag, time.Now())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.queue.PublishEvent(ctx, event); err != nil {
			p.logger.Warn("failed to publish playback event",
				slog.String("video_id", vid),
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}()
}
