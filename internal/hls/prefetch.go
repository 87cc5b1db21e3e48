package hls

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hszk-dev/vidproxy/internal/cachemap"
	"github.com/hszk-dev/vidproxy/internal/infrastructure/metrics"
)

// prefetchTTL is how long an eagerly-fetched segment stays cached.
// clientReadTTL is the short TTL the client-facing read pins on an entry
// it shares with an in-flight prefetch, so a segment already handed to the
// client doesn't linger for the full prefetchTTL (§4.5). A read of a segment
// that was never prefetched fails and leaves no entry behind.
const (
	prefetchTTL   = 120 * time.Second
	clientReadTTL = 3 * time.Second
)

// workerPermits is the width of the bounded prefetch worker pool (§3
// WorkerSemaphore).
const workerPermits = 5

// segmentFetchLimit caps a single .ts segment fetch (§4.5).
const segmentFetchLimit = 15 << 20

// SegmentFetcher is the subset of upstream.Client the prefetch pipeline
// needs, narrowed for testability.
type SegmentFetcher interface {
	ReqGet(ctx context.Context, url string, limit int64, headerFn func(http.Header)) ([]byte, http.Header, error)
}

// PrefetchRegistry tracks segment identifiers currently being read by an
// active client, purely as a priority hint for PutTask (§3, §4.5).
// Membership is advisory: it never gates correctness, only whether a
// prefetch fetch waits for a worker permit.
type PrefetchRegistry struct {
	mu   sync.RWMutex
	uids map[string]struct{}
}

// NewPrefetchRegistry creates an empty registry.
func NewPrefetchRegistry() *PrefetchRegistry {
	return &PrefetchRegistry{uids: make(map[string]struct{})}
}

func (r *PrefetchRegistry) add(uid string) {
	r.mu.Lock()
	r.uids[uid] = struct{}{}
	r.mu.Unlock()
}

func (r *PrefetchRegistry) remove(uid string) {
	r.mu.Lock()
	delete(r.uids, uid)
	r.mu.Unlock()
}

// Contains reports whether uid is currently being read by a client. Exposed
// for tests that want to assert on bypass behavior directly.
func (r *PrefetchRegistry) Contains(uid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.uids[uid]
	return ok
}

// Pipeline bridges the HLS layer and the CACHEDATA cache: PutTask eagerly
// populates a segment, GetTask serves a client's read for one.
type Pipeline struct {
	data     *cachemap.CacheMap[[]byte]
	upstream SegmentFetcher
	registry *PrefetchRegistry
	sem      *semaphore.Weighted
}

// NewPipeline creates a Pipeline. data is the process-wide CACHEDATA
// instance; upstreamClient performs the actual segment fetches.
func NewPipeline(data *cachemap.CacheMap[[]byte], upstreamClient SegmentFetcher) *Pipeline {
	return &Pipeline{
		data:     data,
		upstream: upstreamClient,
		registry: NewPrefetchRegistry(),
		sem:      semaphore.NewWeighted(workerPermits),
	}
}

// PutTask eagerly populates CACHEDATA[uid] with the bytes at url, subject to
// the worker semaphore unless a client is actively waiting on uid (priority
// bypass, §4.5).
func (p *Pipeline) PutTask(ctx context.Context, uid, url string) {
	p.data.LoadOrStore(uid, func() ([]byte, bool) {
		if !p.registry.Contains(uid) {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil, false
			}
			metrics.PrefetchInFlight.Inc()
			defer metrics.PrefetchInFlight.Dec()
			defer p.sem.Release(1)
		}

		data, _, err := p.upstream.ReqGet(ctx, url, segmentFetchLimit, nil)
		if err != nil {
			return nil, false
		}
		return data, true
	}, prefetchTTL)
}

// GetTask is the client-facing read for segment uid. It registers uid as a
// priority hint for the duration of the read, then attaches to (or
// instantly reads) the CACHEDATA entry with a no-op producer: a cache miss
// on a segment that was never prefetched fails fast rather than fetching it
// on demand, per spec.
func (p *Pipeline) GetTask(uid string) ([]byte, bool) {
	p.registry.add(uid)
	defer p.registry.remove(uid)

	return p.data.LoadOrStore(uid, func() ([]byte, bool) {
		return nil, false
	}, clientReadTTL)
}
