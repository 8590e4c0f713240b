// Package http is the gateway entry point: it runs the match, rewrite,
// filter and forward pipeline for every inbound request.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/access"
	"github.com/tkingovr/routegate/internal/exchange"
	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/forward"
	"github.com/tkingovr/routegate/internal/metrics"
	"github.com/tkingovr/routegate/internal/rewrite"
	"github.com/tkingovr/routegate/internal/route"
)

// RequestIDHeader carries the request id to the upstream and the client.
const RequestIDHeader = "X-Request-Id"

// StatusClientClosedRequest is logged when the client disconnects before
// the upstream answered.
const StatusClientClosedRequest = 499

const maxRequestIDLen = 128

// Gateway is the HTTP entry point: it matches a route, rewrites the path,
// runs the filter chain and forwards the request upstream.
type Gateway struct {
	table     atomic.Pointer[route.Table]
	forwarder *forward.Forwarder
	store     access.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAccessStore records every handled request in s.
func WithAccessStore(s access.Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithMetrics records request metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a gateway serving table.
func NewGateway(table *route.Table, fwd *forward.Forwarder, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		forwarder: fwd,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.SetTable(table)
	return g
}

// SetTable atomically replaces the route table. Requests already in flight
// finish with the table they matched against.
func (g *Gateway) SetTable(t *route.Table) {
	g.table.Store(t)
	g.metrics.SetRoutes(len(t.Routes()))
}

// Table returns the active route table.
func (g *Gateway) Table() *route.Table {
	return g.table.Load()
}

// ServeHTTP handles one inbound request.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer g.metrics.RequestStarted()()

	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		id = uuid.NewString()
	}
	ex := exchange.New(r, id)
	ex.Header.Set(RequestIDHeader, id)
	w.Header().Set(RequestIDHeader, id)

	status, size, err := g.handle(r.Context(), w, ex)
	if err != nil {
		status = StatusFor(err)
		g.writeError(w, ex, status, err)
	}
	g.record(ex, status, size, err)
}

// handle runs the pipeline. On error nothing has been written to w.
func (g *Gateway) handle(ctx context.Context, w http.ResponseWriter, ex *exchange.Exchange) (int, int64, error) {
	rt, err := g.table.Load().Match(ctx, ex)
	if err != nil {
		return 0, 0, err
	}

	if err := rt.RewritePath(ex); err != nil {
		// The predicate accepted a path the rewrite cannot handle.
		g.logger.Error("rewrite failed for matched route",
			"route", rt.ID,
			"pattern", rt.Rewrite.Pattern(),
			"template", rt.Rewrite.Template(),
			"error", err,
			"request_id", ex.ID,
		)
		return 0, 0, err
	}

	if rt.Filters.ModifiesBody() {
		ex.Header.Del("Accept-Encoding")
	}
	if err := rt.Filters.ApplyRequest(ctx, ex); err != nil {
		g.filterFailed(rt.ID, ex, err)
		return 0, 0, err
	}

	start := time.Now()
	resp, err := g.forwarder.Forward(ctx, rt.Target(ex), ex)
	if err != nil {
		g.metrics.UpstreamError(rt.ID, upstreamErrorKind(err))
		return 0, 0, err
	}
	g.metrics.ObserveUpstream(rt.ID, time.Since(start))
	ex.Response = resp
	defer resp.Close()

	if err := rt.Filters.ApplyResponse(ctx, ex); err != nil {
		g.filterFailed(rt.ID, ex, err)
		return 0, 0, err
	}

	status, size := g.finalize(w, ex)
	return status, size, nil
}

// finalize writes the filtered upstream response to the client.
func (g *Gateway) finalize(w http.ResponseWriter, ex *exchange.Exchange) (int, int64) {
	resp := ex.Response
	h := w.Header()
	for name, values := range resp.Header {
		if name == RequestIDHeader {
			continue
		}
		h[name] = append([]string(nil), values...)
	}
	if resp.Buffered() {
		data, _ := resp.Buffer(0)
		h.Set("Content-Length", strconv.Itoa(len(data)))
	}
	w.WriteHeader(resp.StatusCode)

	var dst io.Writer = w
	if !resp.Buffered() && isEventStream(h.Get("Content-Type")) {
		dst = &flushWriter{w: w, rc: http.NewResponseController(w)}
	}
	n, err := io.Copy(dst, resp.Reader())
	if err != nil {
		g.logger.Warn("copying response body",
			"route", ex.RouteID,
			"written", n,
			"error", err,
			"request_id", ex.ID,
		)
	}
	return resp.StatusCode, n
}

func (g *Gateway) filterFailed(routeID string, ex *exchange.Exchange, err error) {
	name := "unknown"
	var fe *filter.Error
	if errors.As(err, &fe) {
		name = fe.Filter
	}
	g.metrics.FilterError(routeID, name)
	g.logger.Error("filter failed",
		"route", routeID,
		"filter", name,
		"error", err,
		"request_id", ex.ID,
	)
}

func (g *Gateway) writeError(w http.ResponseWriter, ex *exchange.Exchange, status int, err error) {
	body := api.ErrorBody{
		Error:     errorMessage(err),
		Status:    status,
		RequestID: ex.ID,
	}
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	w.Write(data)
}

func (g *Gateway) record(ex *exchange.Exchange, status int, size int64, err error) {
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	rec := ex.ToAccessRecord(status, errMsg)
	rec.ResponseSize = int(size)

	g.metrics.ObserveRequest(ex.RouteID, ex.Method, status, rec.Duration)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	g.logger.Log(context.Background(), level, "request handled",
		"method", ex.Method,
		"path", ex.OriginalPath,
		"upstream_path", ex.EscapedPath(),
		"route", ex.RouteID,
		"status", status,
		"duration", rec.Duration,
		"request_id", ex.ID,
	)

	if g.store == nil {
		return
	}
	if werr := g.store.Write(context.Background(), rec); werr != nil {
		g.logger.Error("writing access record", "error", werr, "request_id", ex.ID)
	}
}

// StatusFor maps a pipeline error onto the HTTP status returned to the
// client.
func StatusFor(err error) int {
	var rwErr *rewrite.Error
	var fErr *filter.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, route.ErrRouteNotFound):
		return http.StatusNotFound
	case errors.As(err, &rwErr):
		return http.StatusInternalServerError
	case errors.Is(err, forward.ErrClientClosed):
		return StatusClientClosedRequest
	case errors.Is(err, forward.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, forward.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.As(err, &fErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client-facing description of err. Upstream addresses
// and dial details stay in the logs.
func errorMessage(err error) string {
	var rwErr *rewrite.Error
	var fErr *filter.Error
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		return route.ErrRouteNotFound.Error()
	case errors.As(err, &rwErr):
		return "path rewrite failed"
	case errors.Is(err, forward.ErrClientClosed):
		return forward.ErrClientClosed.Error()
	case errors.Is(err, forward.ErrUpstreamTimeout):
		return forward.ErrUpstreamTimeout.Error()
	case errors.Is(err, forward.ErrUpstreamUnavailable):
		return forward.ErrUpstreamUnavailable.Error()
	case errors.As(err, &fErr):
		return fmt.Sprintf("filter %s failed", fErr.Filter)
	default:
		return "internal error"
	}
}

func upstreamErrorKind(err error) string {
	switch {
	case errors.Is(err, forward.ErrClientClosed):
		return "client_closed"
	case errors.Is(err, forward.ErrUpstreamTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// flushWriter flushes after every write so event streams reach the client
// as they arrive.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		f.rc.Flush()
	}
	return n, err
}

// Handler returns an http.Handler for use with http.Server.
func (g *Gateway) Handler() http.Handler {
	return g
}

// ListenAndServe serves the gateway on addr until ctx is done.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	g.logger.Info("starting gateway",
		"listen", addr,
		"routes", len(g.Table().Routes()),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
