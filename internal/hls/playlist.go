// Package hls implements the HLS rewrite/prefetch pipeline: fetching
// master and sub-playlists through the shared byte cache, rewriting them so
// clients address segments and sub-playlists through this proxy, and
// dispatching bounded-concurrency background prefetch for every upcoming
// .ts segment a sub-playlist names.
package hls

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hszk-dev/vidproxy/internal/cachemap"
	"github.com/hszk-dev/vidproxy/internal/hashutil"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
)

const (
	masterTTL       = 600 * time.Second
	masterSizeLimit = 2 << 20

	subplaylistTTL       = 5 * time.Second
	subplaylistSizeLimit = 5 << 20
)

// URLResolver is the subset of resolver.Resolver the HLS layer needs.
type URLResolver interface {
	ParseURL(ctx context.Context, vid, key string) (string, error)
}

// BytesFetcher is the subset of upstream.Client playlists need (distinct
// from SegmentFetcher only in name, to keep each package importing the
// narrowest interface it actually uses).
type BytesFetcher interface {
	ReqGet(ctx context.Context, url string, limit int64, headerFn func(http.Header)) ([]byte, http.Header, error)
}

// ErrNotFound is returned when a requested sub-playlist or segment entry
// cannot be located.
type ErrNotFound struct {
	What string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("NotFound: %s", e.What)
}

// Playlists implements playlist_master, playlist_index, and playlist_ts.
type Playlists struct {
	resolver URLResolver
	data     *cachemap.CacheMap[[]byte]
	upstream BytesFetcher
	pipeline *Pipeline
}

// NewPlaylists creates a Playlists. data is the process-wide CACHEDATA
// instance, shared with pipeline.
func NewPlaylists(resolver URLResolver, data *cachemap.CacheMap[[]byte], upstream BytesFetcher, pipeline *Pipeline) *Playlists {
	return &Playlists{resolver: resolver, data: data, upstream: upstream, pipeline: pipeline}
}

func (p *Playlists) fetchBytes(ctx context.Context, key, url string, ttl time.Duration, limit int64) ([]byte, error) {
	var fetchErr error
	var invoked bool
	value, ok := p.data.LoadOrStore(key, func() ([]byte, bool) {
		invoked = true
		data, _, err := p.upstream.ReqGet(ctx, url, limit, nil)
		if err != nil {
			fetchErr = err
			return nil, false
		}
		return data, true
	}, ttl)

	status := metrics.CacheStatusHit
	if invoked {
		if ok {
			status = metrics.CacheStatusMiss
		} else {
			status = metrics.CacheStatusError
		}
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, status, metrics.CacheTypeData).Inc()

	if !ok {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("hls: fetch %s: upstream fetch failed", key)
	}
	return value, nil
}

// fetchMaster retrieves the raw (unrewritten) master playlist body, cached
// under a key scoped to vid so Index can re-derive it without a second
// upstream call on a cache hit.
func (p *Playlists) fetchMaster(ctx context.Context, vid string) ([]byte, error) {
	masterURL, err := p.resolver.ParseURL(ctx, vid, "hlsManifestUrl")
	if err != nil {
		return nil, err
	}
	return p.fetchBytes(ctx, "master:"+vid, masterURL, masterTTL, masterSizeLimit)
}

// Master implements playlist_master(vid): fetch the master playlist and
// rewrite every variant URL line to point at this proxy's sub-playlist
// route, keyed by the hash of the comment line that precedes it.
func (p *Playlists) Master(ctx context.Context, vid string) (string, error) {
	body, err := p.fetchMaster(ctx, vid)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), masterSizeLimit+1024)

	var lastUID string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			lastUID = hashutil.Hash(line)
			out.WriteString(line)
			out.WriteString("\r\n")
			continue
		}
		fmt.Fprintf(&out, "/video/%s/%s.m3u8\r\n", vid, lastUID)
	}
	return out.String(), nil
}

// Index implements playlist_index(vid, list): locate the sub-playlist URL
// in the master whose preceding comment hashes to list, fetch it, rewrite
// segment lines to the proxy's segment route, and eagerly dispatch a
// background prefetch for each one.
func (p *Playlists) Index(ctx context.Context, vid, list string) (string, error) {
	master, err := p.fetchMaster(ctx, vid)
	if err != nil {
		return "", err
	}

	subURL, err := findSubPlaylistURL(master, list)
	if err != nil {
		return "", err
	}

	body, err := p.fetchBytes(ctx, "sub:"+vid+":"+list, subURL, subplaylistTTL, subplaylistSizeLimit)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), subplaylistSizeLimit+1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			out.WriteString(line)
			out.WriteString("\r\n")
			continue
		}
		uid := hashutil.Hash(line)
		segmentURL := line
		go p.pipeline.PutTask(context.Background(), uid, segmentURL)
		fmt.Fprintf(&out, "/video/%s/%s.ts\r\n", vid, uid)
	}
	return out.String(), nil
}

// Segment implements playlist_ts(vid, ts): serve a prefetched segment or
// report not-found.
func (p *Playlists) Segment(ts string) ([]byte, error) {
	data, ok := p.pipeline.GetTask(ts)
	if !ok {
		return nil, &ErrNotFound{What: "segment " + ts}
	}
	return data, nil
}

// findSubPlaylistURL scans master for the first non-comment line following
// a comment whose hash equals list.
func findSubPlaylistURL(master []byte, list string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(master)))
	scanner.Buffer(make([]byte, 0, 64*1024), masterSizeLimit+1024)

	matched := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			matched = hashutil.Hash(line) == list
			continue
		}
		if matched {
			return line, nil
		}
	}
	return "", &ErrNotFound{What: "sub-playlist " + list}
}
