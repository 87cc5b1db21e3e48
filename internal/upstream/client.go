// Package upstream is the thin façade over the third-party video service:
// it issues the HTTP GET/POST calls the rest of the proxy needs, with
// timeouts, size limits, and header allow-listing, and never itself knows
// about caching or single-flight — that is layered on top by resolver and
// hls.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSizeLimitExceeded is returned when an upstream body exceeds the caller's
// configured cap.
var ErrSizeLimitExceeded = fmt.Errorf("upstream: response exceeded size limit")

// ErrUpstreamStatus is returned when upstream responds with a non-2xx
// status.
type ErrUpstreamStatus struct {
	StatusCode int
}

func (e *ErrUpstreamStatus) Error() string {
	return fmt.Sprintf("upstream: unexpected status %d", e.StatusCode)
}

// ForwardHeaderAllowlist is the set of client request headers forwarded to
// upstream. The "simple" variant (thumbnail and .ts byte-range reads) omits
// Range, which callers staple on separately when they do want a ranged
// read.
var ForwardHeaderAllowlist = []string{
	"User-Agent", "Accept", "Accept-Encoding", "Accept-Language",
	"If-Modified-Since", "If-None-Match", "Range", "Content-Length", "Content-Type",
}

// ForwardHeaderAllowlistSimple omits Range from ForwardHeaderAllowlist.
var ForwardHeaderAllowlistSimple = []string{
	"User-Agent", "Accept", "Accept-Encoding", "Accept-Language",
	"If-Modified-Since", "If-None-Match", "Content-Length", "Content-Type",
}

// ExposeHeaderAllowlist is the set of upstream response headers surfaced to
// the client.
var ExposeHeaderAllowlist = []string{
	"Accept-Ranges", "Content-Range", "Content-Length", "Content-Type",
	"Content-Encoding", "Last-Modified", "ETag",
}

// ExposeHeaderAllowlistSimple omits Accept-Ranges and Content-Range.
var ExposeHeaderAllowlistSimple = []string{
	"Content-Length", "Content-Type", "Content-Encoding", "Last-Modified", "ETag",
}

// Config configures the Client.
type Config struct {
	// PlayerURL is the upstream endpoint parse() POSTs to.
	PlayerURL string
	// MetadataTimeout bounds getplayer calls. Default 10s.
	MetadataTimeout time.Duration
	// MediaTimeout bounds ordinary media GETs. Default 30s.
	MediaTimeout time.Duration
	// UserAgent masquerades as the configured mobile client.
	UserAgent string
}

// DefaultConfig returns production defaults.
func DefaultConfig(playerURL string) Config {
	return Config{
		PlayerURL:       playerURL,
		MetadataTimeout: 10 * time.Second,
		MediaTimeout:    30 * time.Second,
		UserAgent:       "com.upstream.mobile/1.0 (Linux; U; Android 14)",
	}
}

// Client is the façade over the upstream HTTP service.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// NewClient creates a Client. The given http.Client should have
// decompression disabled (DisableCompression on its Transport) so bodies
// pass through byte-for-byte.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	return &Client{httpClient: httpClient, cfg: cfg}
}

// playerRequestBody mirrors the upstream mobile-client player request.
type playerRequestBody struct {
	VideoID string        `json:"videoId"`
	Context playerContext `json:"context"`
}

type playerContext struct {
	Client playerClientInfo `json:"client"`
}

type playerClientInfo struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	HL            string `json:"hl"`
	GL            string `json:"gl"`
}

// GetPlayer issues the player POST for vid and returns the parsed JSON body
// as a permissive, untyped tree (see resolver's traversal helper).
func (c *Client) GetPlayer(ctx context.Context, vid string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MetadataTimeout)
	defer cancel()

	body := playerRequestBody{
		VideoID: vid,
		Context: playerContext{
			Client: playerClientInfo{
				ClientName:    "ANDROID",
				ClientVersion: "19.09.37",
				HL:            "en",
				GL:            "US",
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal player request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PlayerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: build player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: player request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ErrUpstreamStatus{StatusCode: resp.StatusCode}
	}

	data, err := readLimited(resp.Body, 5<<20) // 5 MiB metadata cap
	if err != nil {
		return nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("upstream: decode player response: %w", err)
	}
	return parsed, nil
}

// ReqGet performs a plain GET against url, capping the body at limit bytes
// and using the media timeout. headerFn, if non-nil, can add headers (e.g.
// a Range) to the outgoing request before it is sent.
func (c *Client) ReqGet(ctx context.Context, url string, limit int64, headerFn func(http.Header)) ([]byte, http.Header, error) {
	timeout := c.cfg.MediaTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if headerFn != nil {
		headerFn(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &ErrUpstreamStatus{StatusCode: resp.StatusCode}
	}

	data, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, nil, err
	}
	return data, resp.Header, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrSizeLimitExceeded
	}
	return data, nil
}

// CopyForwardHeaders copies allow-listed headers from src (a client request)
// onto dst (the outgoing upstream request).
func CopyForwardHeaders(dst http.Header, src http.Header, simple bool) {
	allow := ForwardHeaderAllowlist
	if simple {
		allow = ForwardHeaderAllowlistSimple
	}
	for _, h := range allow {
		if v := src.Get(h); v != "" {
			dst.Set(h, v)
		}
	}
}

// CopyExposeHeaders copies allow-listed headers from src (an upstream
// response) onto dst (the client-facing response), injecting the proxy's
// own cache-control/CORS policy per spec.
func CopyExposeHeaders(dst http.Header, src http.Header, simple bool, upstreamStatus int) {
	allow := ExposeHeaderAllowlist
	if simple {
		allow = ExposeHeaderAllowlistSimple
	}
	for _, h := range allow {
		if v := src.Get(h); v != "" {
			dst.Set(h, v)
		}
	}
	if upstreamStatus == http.StatusOK {
		dst.Set("Cache-Control", "public,max-age=86400")
	}
	dst.Set("Access-Control-Allow-Origin", "*")
}

// NewHTTPClient builds the shared *http.Client used by Client: compression
// disabled so bytes pass through untouched, no overall deadline (each call
// sets its own via context).
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
		},
	}
}

// IsNoSuchHost reports whether err looks like a DNS/transport failure
// rather than an application-level upstream error such as ErrUpstreamStatus.
func IsNoSuchHost(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such host")
}
