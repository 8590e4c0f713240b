// Package exchange holds the per-request state passed through the gateway
// pipeline and the upstream response seen by response filters.
package exchange

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tkingovr/routegate/api"
)

// Exchange carries the state of a single in-flight request through the
// gateway pipeline. It is owned by one request and never shared.
type Exchange struct {
	// ID is the request id, echoed as X-Request-Id.
	ID string

	// Method is the inbound HTTP method.
	Method string

	// Path is the decoded request path. Request filters and the rewriter
	// may change it.
	Path string

	// RawPath is the escaped form of Path, as in url.URL. It is ignored
	// when it is not a valid encoding of Path.
	RawPath string

	// OriginalPath is the path as received, before any rewrite.
	OriginalPath string

	// RawQuery is forwarded unchanged.
	RawQuery string

	// Header holds the request headers sent upstream.
	Header http.Header

	// Body is the inbound request body, streamed to the upstream.
	Body          io.ReadCloser
	ContentLength int64

	// Host and RemoteAddr describe the inbound connection for X-Forwarded-*.
	Host       string
	RemoteAddr string
	TLS        bool

	// RouteID is the id of the matched route.
	RouteID string

	// Vars holds URI template variables captured by the route predicate.
	Vars map[string]string

	// Response is set once the upstream call returns.
	Response *Response

	// StartTime records when the request entered the pipeline.
	StartTime time.Time

	requestDone bool
}

// Response is the upstream response as seen by response filters.
type Response struct {
	StatusCode int
	Header     http.Header

	body     io.ReadCloser
	buffered []byte
	isBuffer bool
}

// New creates an Exchange from an inbound request.
func New(r *http.Request, id string) *Exchange {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Exchange{
		ID:            id,
		Method:        r.Method,
		Path:          r.URL.Path,
		RawPath:       r.URL.RawPath,
		OriginalPath:  r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Header:        header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          r.Host,
		RemoteAddr:    r.RemoteAddr,
		TLS:           r.TLS != nil,
		Vars:          map[string]string{},
		StartTime:     time.Now(),
	}
}

// EscapedPath returns the path as it is sent upstream. Escapes present in
// the inbound request, such as %2F inside a segment, are kept.
func (ex *Exchange) EscapedPath() string {
	u := url.URL{Path: ex.Path, RawPath: ex.RawPath}
	return u.EscapedPath()
}

// SetEscapedPath replaces the path with an escaped path and its decoded form.
func (ex *Exchange) SetEscapedPath(escaped string) error {
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return err
	}
	ex.Path = path
	ex.RawPath = escaped
	return nil
}

// MarkRequestDone records that every request filter completed successfully.
func (ex *Exchange) MarkRequestDone() { ex.requestDone = true }

// RequestDone reports whether the request phase finished successfully.
func (ex *Exchange) RequestDone() bool { return ex.requestDone }

// ToAccessRecord converts the exchange into an access log record.
func (ex *Exchange) ToAccessRecord(status int, errMsg string) *api.AccessRecord {
	rec := &api.AccessRecord{
		ID:           ex.ID,
		Timestamp:    ex.StartTime,
		Method:       ex.Method,
		Path:         ex.OriginalPath,
		UpstreamPath: ex.EscapedPath(),
		Route:        ex.RouteID,
		Status:       status,
		Error:        errMsg,
		Duration:     time.Since(ex.StartTime),
	}
	if ex.Response != nil && ex.Response.isBuffer {
		rec.ResponseSize = len(ex.Response.buffered)
	}
	return rec
}

// NewResponse wraps an upstream status, header set and streaming body.
func NewResponse(status int, header http.Header, body io.ReadCloser) *Response {
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = http.NoBody
	}
	return &Response{StatusCode: status, Header: header, body: body}
}

// Buffer reads the whole body into memory, up to limit bytes (0 means no
// limit). It is idempotent.
func (r *Response) Buffer(limit int64) ([]byte, error) {
	if r.isBuffer {
		return r.buffered, nil
	}
	defer r.body.Close()

	src := io.Reader(r.body)
	if limit > 0 {
		src = io.LimitReader(r.body, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	r.buffered = data
	r.isBuffer = true
	return data, nil
}

// SetBody replaces the body with an in-memory buffer.
func (r *Response) SetBody(data []byte) {
	if !r.isBuffer {
		r.body.Close()
	}
	r.buffered = data
	r.isBuffer = true
}

// Buffered reports whether the body is held in memory.
func (r *Response) Buffered() bool { return r.isBuffer }

// Reader returns the body for writing to the client. Buffered bodies are
// returned as a fresh reader; streaming bodies may only be read once.
func (r *Response) Reader() io.ReadCloser {
	if r.isBuffer {
		return io.NopCloser(bytes.NewReader(r.buffered))
	}
	return r.body
}

// Close releases the upstream body if it was never consumed.
func (r *Response) Close() error {
	if r.isBuffer {
		return nil
	}
	return r.body.Close()
}
