package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EventRepository persists playback analytics events, written by the event
// worker after it consumes them off the queue.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository instance.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Insert persists a single playback event.
func (r *EventRepository) Insert(ctx context.Context, event model.PlaybackEvent) error {
	const query = `
		INSERT INTO playback_events (id, video_id, kind, itag, client_ip, user_agent, retry_count, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.VideoID,
		event.Kind,
		event.Itag,
		event.ClientIP,
		event.UserAgent,
		event.RetryCount,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playback event: %w", err)
	}

	return nil
}

// CountByVideo returns how many events of kind have been recorded for vid.
// Nothing on the request path calls it.
func (r *EventRepository) CountByVideo(ctx context.Context, vid, kind string) (int64, error) {
	const query = `
		SELECT count(*) FROM playback_events WHERE video_id = $1 AND kind = $2
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, vid, kind).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count playback events: %w", err)
	}
	return count, nil
}
