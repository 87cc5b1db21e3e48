package repository

import (
	"context"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
)

// EventQueue defines the interface for publishing and consuming playback
// analytics events. Implementations are provided by the infrastructure layer
// (e.g., RabbitMQ).
type EventQueue interface {
	// PublishEvent sends a playback event to the queue. Used by the server
	// to record a playback action without blocking the request path on it.
	PublishEvent(ctx context.Context, event model.PlaybackEvent) error

	// ConsumeEvents starts consuming playback events from the queue. The
	// handler function is called for each received event. Used by the
	// event worker.
	ConsumeEvents(ctx context.Context, handler func(event model.PlaybackEvent) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
