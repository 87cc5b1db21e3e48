// Package model holds the domain types shared across the proxy's analytics
// pipeline, kept separate from the cache/resolver/hls packages which only
// ever see upstream's own JSON shapes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// PlaybackEvent records a single client playback action for the analytics
// pipeline (§4.6). Publishing is fire-and-forget: the core cache-and-serve
// path never blocks on it and never depends on its success.
type PlaybackEvent struct {
	ID         uuid.UUID `json:"id"`
	VideoID    string    `json:"video_id"`
	Kind       string    `json:"kind"` // one of the Event* constants below
	Itag       int       `json:"itag,omitempty"`
	ClientIP   string    `json:"client_ip"`
	UserAgent  string    `json:"user_agent"`
	RetryCount int       `json:"retry_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event kinds recorded by the analytics pipeline.
const (
	EventPlayerResolved = "player_resolved"
	EventSegmentServed  = "segment_served"
	EventStreamServed   = "stream_served"
	EventRateLimited    = "rate_limited"
)

// NewPlaybackEvent stamps a new event with a fresh ID and the given
// occurrence time (callers pass time.Now() rather than the model reaching
// for it, keeping the type itself deterministic to construct in tests).
func NewPlaybackEvent(videoID, kind, clientIP, userAgent string, itag int, occurredAt time.Time) PlaybackEvent {
	return PlaybackEvent{
		ID:         uuid.New(),
		VideoID:    videoID,
		Kind:       kind,
		Itag:       itag,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		OccurredAt: occurredAt,
	}
}
