package hls

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/vidproxy/internal/cachemap"
)

type fakeSegmentFetcher struct {
	fetchDuration time.Duration
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
}

func (f *fakeSegmentFetcher) ReqGet(ctx context.Context, url string, limit int64, headerFn func(http.Header)) ([]byte, http.Header, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	time.Sleep(f.fetchDuration)
	return []byte("segment:" + url), http.Header{}, nil
}

// Invariant 7: bounded concurrency — at most workerPermits non-bypassed
// fetches run at once.
func TestPutTask_BoundedConcurrency(t *testing.T) {
	fetcher := &fakeSegmentFetcher{fetchDuration: 150 * time.Millisecond}
	p := NewPipeline(cachemap.New[[]byte](), fetcher)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := "seg" + string(rune('a'+i))
			p.PutTask(context.Background(), uid, "https://upstream/"+uid+".ts")
		}(i)
	}
	wg.Wait()

	if got := fetcher.maxInFlight.Load(); got > workerPermits {
		t.Fatalf("max concurrent fetches = %d, want <= %d", got, workerPermits)
	}
}

// S6 / invariant 8: priority bypass liveness. Five background PutTask calls
// saturate the semaphore; a concurrent GetTask for a sixth uid must cause
// that uid's fetch to start immediately rather than queue behind the first
// five.
func TestPriorityBypass(t *testing.T) {
	fetcher := &fakeSegmentFetcher{fetchDuration: time.Second}
	p := NewPipeline(cachemap.New[[]byte](), fetcher)

	// Saturate all 5 permits with slow background fetches.
	for i := 0; i < workerPermits; i++ {
		uid := "bg" + string(rune('a'+i))
		go p.PutTask(context.Background(), uid, "https://upstream/"+uid+".ts")
	}
	time.Sleep(50 * time.Millisecond) // let them all acquire permits

	// Now a client actively waits for uid6 while a put_task for it is
	// dispatched concurrently.
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.GetTask("uid6")
	}()
	time.Sleep(10 * time.Millisecond) // ensure GetTask's registry.add happened first

	putStart := time.Now()
	putDone := make(chan struct{})
	go func() {
		defer close(putDone)
		p.PutTask(context.Background(), "uid6", "https://upstream/uid6.ts")
	}()

	select {
	case <-putDone:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("bypassed PutTask did not complete promptly; it appears to have queued on the semaphore")
	}
	elapsed := time.Since(putStart)
	if elapsed > 500*time.Millisecond {
		t.Fatalf("bypassed fetch took %v, want near-instant start (bypassing the saturated semaphore)", elapsed)
	}

	<-done
}

func TestGetTask_HitAfterPut(t *testing.T) {
	fetcher := &fakeSegmentFetcher{fetchDuration: 10 * time.Millisecond}
	p := NewPipeline(cachemap.New[[]byte](), fetcher)

	p.PutTask(context.Background(), "u1", "https://upstream/u1.ts")

	data, ok := p.GetTask("u1")
	if !ok {
		t.Fatal("expected a cache hit after PutTask completed")
	}
	if string(data) != "segment:https://upstream/u1.ts" {
		t.Errorf("data = %q, unexpected", data)
	}
}

func TestGetTask_MissFailsFast(t *testing.T) {
	fetcher := &fakeSegmentFetcher{fetchDuration: time.Millisecond}
	p := NewPipeline(cachemap.New[[]byte](), fetcher)

	start := time.Now()
	_, ok := p.GetTask("never-prefetched")
	if ok {
		t.Fatal("expected a miss for a segment that was never prefetched")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("GetTask on an unprefetched uid should fail fast, not attempt its own fetch")
	}
}
