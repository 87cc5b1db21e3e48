package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"playabilityStatus":{"status":"OK"},"videoDetails":{"isLive":false}}`))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPClient(), DefaultConfig(srv.URL))
	got, err := c.GetPlayer(context.Background(), "abc123xyz")
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	status, _ := got["playabilityStatus"].(map[string]any)
	if status["status"] != "OK" {
		t.Errorf("playabilityStatus.status = %v, want OK", status["status"])
	}
}

func TestGetPlayer_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(NewHTTPClient(), DefaultConfig(srv.URL))
	_, err := c.GetPlayer(context.Background(), "abc123xyz")
	if err == nil {
		t.Fatal("expected error on non-2xx status")
	}
	var statusErr *ErrUpstreamStatus
	if !asErrUpstreamStatus(err, &statusErr) {
		t.Fatalf("error = %v, want *ErrUpstreamStatus", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusBadGateway)
	}
}

func asErrUpstreamStatus(err error, target **ErrUpstreamStatus) bool {
	if e, ok := err.(*ErrUpstreamStatus); ok {
		*target = e
		return true
	}
	return false
}

func TestReqGet_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPClient(), DefaultConfig(srv.URL))
	_, _, err := c.ReqGet(context.Background(), srv.URL, 10, nil)
	if err != ErrSizeLimitExceeded {
		t.Fatalf("err = %v, want ErrSizeLimitExceeded", err)
	}
}

func TestReqGet_WithinLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPClient(), DefaultConfig(srv.URL))
	data, _, err := c.ReqGet(context.Background(), srv.URL, 10, nil)
	if err != nil {
		t.Fatalf("ReqGet: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want %q", data, "hello")
	}
}

func TestCopyHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Range", "bytes=0-1")
	src.Set("User-Agent", "test-agent")
	src.Set("X-Not-Allowed", "nope")

	dst := http.Header{}
	CopyForwardHeaders(dst, src, false)
	if dst.Get("Range") != "bytes=0-1" {
		t.Errorf("Range not forwarded in full variant")
	}
	if dst.Get("X-Not-Allowed") != "" {
		t.Errorf("non-allowlisted header leaked through")
	}

	dstSimple := http.Header{}
	CopyForwardHeaders(dstSimple, src, true)
	if dstSimple.Get("Range") != "" {
		t.Errorf("Range must be omitted by the simple variant")
	}

	upstreamResp := http.Header{}
	upstreamResp.Set("Accept-Ranges", "bytes")
	upstreamResp.Set("Content-Type", "video/mp2t")

	exposed := http.Header{}
	CopyExposeHeaders(exposed, upstreamResp, false, http.StatusOK)
	if exposed.Get("Accept-Ranges") != "bytes" {
		t.Errorf("Accept-Ranges not exposed in full variant")
	}
	if exposed.Get("Cache-Control") != "public,max-age=86400" {
		t.Errorf("Cache-Control not injected on 200")
	}
	if exposed.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS header missing")
	}

	exposedSimple := http.Header{}
	CopyExposeHeaders(exposedSimple, upstreamResp, true, http.StatusOK)
	if exposedSimple.Get("Accept-Ranges") != "" {
		t.Errorf("Accept-Ranges must be omitted by the simple variant")
	}
}
