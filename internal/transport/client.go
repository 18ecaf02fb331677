// Package transport performs the actual HTTP dispatch for a compiled
// request, and exposes a provider's streaming response body as the
// io.Reader the streampipeline package expects. Grounded on
// leofalp-aigo/internal/utils/http.go's DoPostSync (header injection,
// always-close-body-via-defer, non-2xx detection) adapted to return the raw
// body instead of a generic decoded struct, since compiler.CompiledRequest
// already carries a dynamic body and the response shape varies per manifest.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aiproto/runtime/compiler"
)

// DefaultMaxBodyBytes caps how much of a non-streaming response body is read
// into memory, guarding against a misbehaving or malicious provider sending
// an unbounded response.
const DefaultMaxBodyBytes = 16 << 20 // 16MiB

// DefaultRequestTimeout bounds a non-streaming dispatch end to end (connect
// through full body read) when the caller's context carries no earlier
// deadline of its own.
const DefaultRequestTimeout = 60 * time.Second

// DefaultStreamIdleTimeout bounds the gap between successive reads of a
// streaming response body. It is a per-chunk idle cap, not an overall
// deadline: per spec.md §5, a streaming call has no maximum total duration.
const DefaultStreamIdleTimeout = 30 * time.Second

// Client wraps a pooled *http.Client for dispatching compiled requests. The
// http.Client itself carries no Timeout: a fixed client-wide timeout would
// either truncate a legitimate long-running stream or fail to bound a stuck
// non-streaming call tightly enough, so both deadlines are applied per call
// in Do instead.
type Client struct {
	http              *http.Client
	logger            *slog.Logger
	maxBodyBytes      int64
	requestTimeout    time.Duration
	streamIdleTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (e.g. to tune
// transport pooling or add a round tripper for tests). Any Timeout set on h
// is left as-is; prefer WithRequestTimeout to bound non-streaming calls,
// since a client-wide Timeout also applies to streaming calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger overrides the structured logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxBodyBytes overrides the non-streaming response body size cap.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) { c.maxBodyBytes = n }
}

// WithRequestTimeout overrides the non-streaming per-call deadline. It has
// no effect on streaming calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithStreamIdleTimeout overrides the per-chunk idle cap applied while
// reading a streaming response body.
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.streamIdleTimeout = d }
}

// New builds a Client, pooling connections via a shared *http.Client unless
// overridden.
func New(opts ...Option) *Client {
	c := &Client{
		http:              &http.Client{},
		logger:            slog.Default(),
		maxBodyBytes:      DefaultMaxBodyBytes,
		requestTimeout:    DefaultRequestTimeout,
		streamIdleTimeout: DefaultStreamIdleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is the raw result of dispatching a CompiledRequest: the status
// code, response headers (for resilience.RateLimiter.ObserveHeaders), and
// either a fully-buffered body or, when streaming, the still-open body
// reader the caller must close.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte // populated when !Streaming
	Stream     io.ReadCloser // populated when Streaming; caller must Close
	Streaming  bool
}

// Do dispatches req. When streaming is true, the dispatch carries no overall
// deadline: the response body is handed back open, wrapped in a per-chunk
// idle timer, for the caller to feed into streampipeline.Run. Otherwise the
// call is bounded by c.requestTimeout end to end, and the body is read fully
// (bounded by maxBodyBytes) and closed here.
func (c *Client) Do(ctx context.Context, req *compiler.CompiledRequest, streaming bool) (*Response, error) {
	var cancel context.CancelFunc
	if streaming {
		ctx, cancel = context.WithCancel(ctx)
	} else if c.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}
	if cancel == nil {
		cancel = func() {}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	res, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: sending request: %w", err)
	}

	c.logger.Debug("dispatched provider request",
		"method", req.Method, "url", req.URL, "status", res.StatusCode, "duration_ms", elapsed.Milliseconds())

	if streaming && res.StatusCode >= 200 && res.StatusCode < 300 {
		stream := newIdleTimeoutReader(res.Body, c.streamIdleTimeout, cancel)
		return &Response{StatusCode: res.StatusCode, Header: res.Header, Stream: stream, Streaming: true}, nil
	}

	defer cancel()
	defer closeWithLog(c.logger, res.Body)
	limited := io.LimitReader(res.Body, c.maxBodyBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response body: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: body}, nil
}

// idleTimeoutReader wraps a streaming response body so that a gap between
// successive successful reads longer than idle aborts the read, instead of
// bounding the stream's total lifetime. Each Read resets the timer; the
// timer firing cancels the request context, which unblocks whatever Read
// call on the underlying connection is currently in flight.
type idleTimeoutReader struct {
	body   io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
}

func newIdleTimeoutReader(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) io.ReadCloser {
	r := &idleTimeoutReader{body: body, idle: idle, cancel: cancel}
	if idle > 0 {
		r.timer = time.AfterFunc(idle, cancel)
	}
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if r.timer != nil && n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.cancel()
	return r.body.Close()
}

func closeWithLog(logger *slog.Logger, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close response body", "error", err.Error())
	}
}
