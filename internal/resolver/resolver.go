// Package resolver turns upstream "player" JSON into VideoInfo, memoizing
// the parse through a CacheMap keyed by video ID. The upstream body is
// walked by string path with default-empty fallback rather than decoded
// into a strict schema: the third-party shape drifts without notice, and a
// strict decoder would fail on cosmetic changes (see spec design notes on
// "Dynamic JSON").
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/hszk-dev/vidproxy/internal/cachemap"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
)

// TTL is how long a parsed player response is memoized.
const TTL = 3600 * time.Second

// StreamItem is one encoding of a video, keyed by itag in VideoInfo.Streams.
type StreamItem struct {
	Quality    string `json:"quality"`
	Type       string `json:"type"`
	URL        string `json:"-"` // never serialized to clients
	Itag       int    `json:"itag"`
	Len        string `json:"len"`
	InitRange  string `json:"initRange,omitempty"`
	IndexRange string `json:"indexRange,omitempty"`
}

// VideoInfo is the parsed upstream player metadata.
type VideoInfo struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Duration string              `json:"duration"`
	Author   string              `json:"author"`
	Live     bool                `json:"live"`
	Streams  map[int]*StreamItem `json:"streams"`
}

// ErrPlayabilityDenied is returned when upstream's playabilityStatus is not
// "OK"; Reason carries upstream's own explanation.
type ErrPlayabilityDenied struct {
	Reason string
}

func (e *ErrPlayabilityDenied) Error() string {
	return fmt.Sprintf("playability denied: %s", e.Reason)
}

// PlayerFetcher is the subset of upstream.Client the resolver needs; an
// interface so tests can substitute a fake.
type PlayerFetcher interface {
	GetPlayer(ctx context.Context, vid string) (map[string]any, error)
}

// Resolver exposes parse/parse_url, both memoized through a JSON CacheMap.
type Resolver struct {
	upstream PlayerFetcher
	cache    *cachemap.CacheMap[any]
}

// New creates a Resolver backed by cache (the process-wide CACHEJSON
// instance) and upstream.
func New(upstreamClient PlayerFetcher, cache *cachemap.CacheMap[any]) *Resolver {
	return &Resolver{upstream: upstreamClient, cache: cache}
}

// fetchRaw returns the raw upstream player JSON for vid, single-flighted
// and memoized through the resolver's CacheMap. Both Parse and ParseURL
// derive from this one cached entry, so a burst of calls for the same vid
// across both operations still costs at most one upstream request.
func (r *Resolver) fetchRaw(ctx context.Context, vid string) (map[string]any, error) {
	var fetchErr error
	var invoked bool
	key := "player:" + vid

	value, ok := r.cache.LoadOrStore(key, func() (any, bool) {
		invoked = true
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
		raw, err := r.upstream.GetPlayer(ctx, vid)
		if err != nil {
			fetchErr = err
			return nil, false
		}
		return raw, true
	}, TTL)

	if !invoked {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, cacheStatus(invoked, ok), metrics.CacheTypeJSON).Inc()

	if !ok {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("resolver: fetch(%s): upstream fetch failed", vid)
	}
	return value.(map[string]any), nil
}

// Parse returns the parsed VideoInfo for vid, memoized for TTL.
func (r *Resolver) Parse(ctx context.Context, vid string) (*VideoInfo, error) {
	raw, err := r.fetchRaw(ctx, vid)
	if err != nil {
		return nil, err
	}
	return buildVideoInfo(vid, raw)
}

// ParseURL returns streamingData[key] (e.g. "hlsManifestUrl") as a string.
func (r *Resolver) ParseURL(ctx context.Context, vid, key string) (string, error) {
	raw, err := r.fetchRaw(ctx, vid)
	if err != nil {
		return "", err
	}

	// parse_url must still honor the playability check: an upstream body
	// that denies playback has no trustworthy streamingData either.
	playability := asMap(raw["playabilityStatus"])
	if getString(playability, "status") != "OK" {
		return "", &ErrPlayabilityDenied{Reason: getString(playability, "reason")}
	}

	urlValue := getString(asMap(raw["streamingData"]), key)
	if urlValue == "" {
		return "", fmt.Errorf("resolver: parse_url(%s, %s): field not found", vid, key)
	}
	return urlValue, nil
}

func buildVideoInfo(vid string, raw map[string]any) (*VideoInfo, error) {
	playability := asMap(raw["playabilityStatus"])
	status := getString(playability, "status")
	if status != "OK" {
		return nil, &ErrPlayabilityDenied{Reason: getString(playability, "reason")}
	}

	videoDetails := asMap(raw["videoDetails"])
	streamingData := asMap(raw["streamingData"])

	formats, _ := streamingData["formats"].([]any)
	adaptiveFormats, _ := streamingData["adaptiveFormats"].([]any)

	streams := make(map[int]*StreamItem, len(formats)+len(adaptiveFormats))
	for _, f := range formats {
		item := buildStreamItem(asMap(f))
		streams[item.Itag] = item
	}
	for _, f := range adaptiveFormats {
		item := buildStreamItem(asMap(f))
		streams[item.Itag] = item
	}

	live, _ := videoDetails["isLive"].(bool)

	return &VideoInfo{
		ID:       vid,
		Title:    getString(videoDetails, "title"),
		Duration: getString(videoDetails, "lengthSeconds"),
		Author:   getString(videoDetails, "author"),
		Live:     live,
		Streams:  streams,
	}, nil
}

func buildStreamItem(m map[string]any) *StreamItem {
	itag := 0
	if v, ok := m["itag"].(float64); ok {
		itag = int(v)
	}
	return &StreamItem{
		Quality:    qualityOf(m),
		Type:       getString(m, "mimeType"),
		URL:        getString(m, "url"),
		Itag:       itag,
		Len:        getString(m, "contentLength"),
		InitRange:  getRangeString(m, "initRange"),
		IndexRange: getRangeString(m, "indexRange"),
	}
}

// qualityOf prefers qualityLabel (the human-readable form adaptive formats
// carry, e.g. "1080p60") and falls back to quality, which is all
// progressive formats have.
func qualityOf(m map[string]any) string {
	if label := getString(m, "qualityLabel"); label != "" {
		return label
	}
	return getString(m, "quality")
}

func getRangeString(m map[string]any, key string) string {
	r := asMap(m[key])
	if r == nil {
		return ""
	}
	start := getString(r, "start")
	end := getString(r, "end")
	if start == "" && end == "" {
		return ""
	}
	return start + "-" + end
}

// cacheStatus derives a metrics status label from whether this call's
// producer closure ran. invoked=false means the value came from an
// already-cached entry or a leader another goroutine was waiting on.
func cacheStatus(invoked, ok bool) string {
	if !invoked {
		return metrics.CacheStatusHit
	}
	if ok {
		return metrics.CacheStatusMiss
	}
	return metrics.CacheStatusError
}

// asMap permissively coerces v to map[string]any, returning nil (never
// panicking) for any other shape, including nil.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// getString permissively reads a string field, defaulting to "" for any
// missing or non-string value.
func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
