package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hszk-dev/vidproxy/internal/domain/model"
	"github.com/hszk-dev/vidproxy/internal/usecase"
)

func TestRoot(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Root(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "Hello world!" {
		t.Errorf("body = %q, unexpected", rec.Body.String())
	}
}

func TestEcho_EchoesBodyAndContentType(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader([]byte(`{"a":1}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Echo(rec, req)

	if rec.Body.String() != `{"a":1}` {
		t.Errorf("body = %q, want request body echoed", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want echoed", ct)
	}
}

func TestClientIP_PrefersForwardedForOverRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")

	if got := clientIP(req); got != "203.0.113.5" {
		t.Errorf("clientIP = %q, want first X-Forwarded-For entry", got)
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q, want host without port", got)
	}
}

// blockingQueue.PublishEvent blocks until told to proceed, simulating a
// broker that is slow or unreachable.
type blockingQueue struct {
	unblock chan struct{}
}

func (q *blockingQueue) PublishEvent(ctx context.Context, event model.PlaybackEvent) error {
	<-q.unblock
	return nil
}

func (q *blockingQueue) ConsumeEvents(ctx context.Context, handler func(event model.PlaybackEvent) error) error {
	return nil
}

func (q *blockingQueue) Close() error { return nil }

// record publishes analytics fire-and-forget: a slow/blocked broker must
// never delay the calling handler.
func TestRecord_NeverBlocksOnSlowQueue(t *testing.T) {
	queue := &blockingQueue{unblock: make(chan struct{})}
	defer close(queue.unblock)

	h := &Handlers{
		Events: usecase.NewEventPublisher(queue, slog.Default()),
	}

	req := httptest.NewRequest(http.MethodGet, "/video/abc123xyz.json", nil)

	done := make(chan struct{})
	go func() {
		h.record(req, "abc123xyz", model.EventPlayerResolved, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("record() blocked on a broker that never responded")
	}
}

func TestRecord_NilEventsIsNoop(t *testing.T) {
	h := &Handlers{}
	req := httptest.NewRequest(http.MethodGet, "/video/abc123xyz.json", nil)

	// Must not panic when no analytics sink is configured.
	h.record(req, "abc123xyz", model.EventPlayerResolved, 0)
}
