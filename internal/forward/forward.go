// Package forward performs the single upstream call of a proxied request.
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tkingovr/routegate/internal/exchange"
)

var (
	// ErrUpstreamUnavailable means the upstream could not be reached or
	// dropped the connection.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout means the upstream did not answer before the
	// request deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrClientClosed means the inbound client went away while the
	// upstream call was in flight.
	ErrClientClosed = errors.New("client closed request")
)

// hopHeaders are removed in both directions (RFC 9110 section 7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder issues upstream calls. It never retries.
type Forwarder struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Forwarder) { f.transport = rt }
}

// WithTimeout sets the per-request upstream deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) { f.timeout = d }
}

// New creates a Forwarder. Connection reuse is left to the transport.
func New(logger *slog.Logger, opts ...Option) *Forwarder {
	f := &Forwarder{
		transport: http.DefaultTransport.(*http.Transport).Clone(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward sends the exchange's request to target and returns the upstream
// response with a streaming body. The caller must close the response. The
// call is canceled when ctx is done or the upstream timeout elapses.
func (f *Forwarder) Forward(ctx context.Context, target *url.URL, ex *exchange.Exchange) (*exchange.Response, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if f.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	var body io.Reader
	if ex.Body != nil && ex.Body != http.NoBody {
		body = ex.Body
	}
	req, err := http.NewRequestWithContext(callCtx, ex.Method, target.String(), body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	if body != nil {
		req.ContentLength = ex.ContentLength
	}
	req.Header = ex.Header.Clone()
	removeHopHeaders(req.Header)
	setForwardedHeaders(req.Header, ex)
	req.Host = target.Host

	start := time.Now()
	resp, err := f.transport.RoundTrip(req)
	if err != nil {
		cancel()
		classified := classify(ctx, err)
		f.logger.Warn("upstream call failed",
			"target", target.Redacted(),
			"route", ex.RouteID,
			"error", classified,
			"request_id", ex.ID,
		)
		return nil, classified
	}

	f.logger.Debug("upstream responded",
		"target", target.Redacted(),
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
		"request_id", ex.ID,
	)

	removeHopHeaders(resp.Header)
	return exchange.NewResponse(resp.StatusCode, resp.Header, &cancelBody{ReadCloser: resp.Body, cancel: cancel}), nil
}

// classify maps a transport error onto the gateway's upstream errors.
func classify(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", ErrClientClosed, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func setForwardedHeaders(h http.Header, ex *exchange.Exchange) {
	if ip, _, err := net.SplitHostPort(ex.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	if ex.Host != "" {
		h.Set("X-Forwarded-Host", ex.Host)
	}
	proto := "http"
	if ex.TLS {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}

// cancelBody releases the call context once the body has been consumed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
