package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/access"
	"github.com/tkingovr/routegate/internal/exchange"
	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/forward"
	"github.com/tkingovr/routegate/internal/metrics"
	"github.com/tkingovr/routegate/internal/rewrite"
	"github.com/tkingovr/routegate/internal/route"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// demoRoutes mirrors configs/routes.yaml with both upstreams replaced.
func demoRoutes(helloURL, usersURL string) *route.RouteFile {
	return &route.RouteFile{
		Version: 1,
		Routes: []route.RouteSpec{
			{
				ID:        "getRoute",
				Predicate: route.PredicateSpec{Path: "/hello"},
				URI:       helloURL + "/hello",
				Filters: []filter.Spec{
					{Type: filter.TypeAddRequestHeader, Name: "Message", Value: "Hello World"},
					{Type: filter.TypeLogRequestHeader, Name: "Message"},
					{Type: filter.TypeAddResponseHeader, Name: "HEADER", Value: "HEADER_VALUE"},
					{Type: filter.TypeModifyResponseBody, Transform: "uppercase"},
				},
			},
			{
				ID:        "getUsers",
				Predicate: route.PredicateSpec{Path: "/users"},
				URI:       usersURL + "/users/",
			},
			{
				ID:        "getUserById",
				Predicate: route.PredicateSpec{Path: "/users/**"},
				URI:       usersURL + "/users/",
				Rewrite:   &route.RewriteSpec{Regex: "/users/(?<segment>.*)", Replacement: "/users/${segment}"},
			},
		},
	}
}

type testGateway struct {
	*Gateway
	store *access.JSONLStore
}

func newTestGateway(t *testing.T, rf *route.RouteFile, opts ...forward.Option) *testGateway {
	t.Helper()
	logger := newTestLogger()
	table, err := route.NewTable(context.Background(), rf, filter.BuildConfig{Logger: logger})
	require.NoError(t, err)

	store, err := access.NewJSONLStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := metrics.New()
	require.NoError(t, err)

	g := NewGateway(table, forward.New(logger, opts...), logger, WithAccessStore(store), WithMetrics(m))
	return &testGateway{Gateway: g, store: store}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorBody {
	t.Helper()
	var body api.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGateway_HelloRoute(t *testing.T) {
	var gotMessage string
	hello := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMessage = r.Header.Get("Message")
		assert.Equal(t, "/hello", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "hello world")
	}))
	defer hello.Close()

	g := newTestGateway(t, demoRoutes(hello.URL, "http://127.0.0.1:1"))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello World", gotMessage)
	assert.Equal(t, "HEADER_VALUE", w.Header().Get("HEADER"))
	assert.Equal(t, "HELLO WORLD", w.Body.String())
	assert.Equal(t, "11", w.Header().Get("Content-Length"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestGateway_UppercaseIsIdempotent(t *testing.T) {
	hello := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ALREADY UPPER")
	}))
	defer hello.Close()

	g := newTestGateway(t, demoRoutes(hello.URL, "http://127.0.0.1:1"))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))
	assert.Equal(t, "ALREADY UPPER", w.Body.String())
}

func TestGateway_UsersRewrite(t *testing.T) {
	var gotPath, gotQuery string
	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":42}`)
	}))
	defer users.Close()

	g := newTestGateway(t, demoRoutes("http://127.0.0.1:1", users.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/users/42?expand=posts", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, "expand=posts", gotQuery)
	assert.JSONEq(t, `{"id":42}`, w.Body.String())
	assert.Empty(t, w.Header().Get("HEADER"))
}

func TestGateway_UsersRewriteKeepsEncodedSlash(t *testing.T) {
	var gotRequestURI, gotPath string
	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestURI = r.RequestURI
		gotPath = r.URL.Path
		io.WriteString(w, `{}`)
	}))
	defer users.Close()

	g := newTestGateway(t, demoRoutes("http://127.0.0.1:1", users.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/users/a%2Fb", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/users/a%2Fb", gotRequestURI)
	assert.Equal(t, "/users/a/b", gotPath)

	records, err := g.store.Query(context.Background(), api.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/users/a%2Fb", records[0].UpstreamPath)
}

func TestGateway_FlushesEventStreamWithParams(t *testing.T) {
	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		io.WriteString(w, "data: one\n\n")
	}))
	defer users.Close()

	g := newTestGateway(t, demoRoutes("http://127.0.0.1:1", users.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/users/events", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data: one\n\n", w.Body.String())
	assert.True(t, w.Flushed)
}

func TestIsEventStream(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/event-stream", true},
		{"text/event-stream; charset=utf-8", true},
		{"Text/Event-Stream", true},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isEventStream(tt.contentType), tt.contentType)
	}
}

func TestGateway_UsersList(t *testing.T) {
	var gotPath string
	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `[]`)
	}))
	defer users.Close()

	g := newTestGateway(t, demoRoutes("http://127.0.0.1:1", users.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/users", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/users", gotPath)
}

func TestGateway_RouteNotFoundNeverForwards(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer upstream.Close()

	g := newTestGateway(t, demoRoutes(upstream.URL, upstream.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, int32(0), calls.Load())

	body := decodeError(t, w)
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Equal(t, "route not found", body.Error)
	assert.Equal(t, w.Header().Get(RequestIDHeader), body.RequestID)
}

func TestGateway_UpstreamUnavailable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	addr := down.URL
	down.Close()

	g := newTestGateway(t, demoRoutes(addr, addr))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, w.Header().Get("HEADER"))
	body := decodeError(t, w)
	assert.Equal(t, "upstream unavailable", body.Error)
}

func TestGateway_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	g := newTestGateway(t, demoRoutes(slow.URL, slow.URL), forward.WithTimeout(50*time.Millisecond))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/users/1", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestGateway_HonorsRequestID(t *testing.T) {
	var upstreamID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamID = r.Header.Get(RequestIDHeader)
		w.Header().Set(RequestIDHeader, "upstream-own-id")
	}))
	defer upstream.Close()

	g := newTestGateway(t, demoRoutes(upstream.URL, upstream.URL))

	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", upstreamID)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestGateway_RecordsAccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	g := newTestGateway(t, demoRoutes(upstream.URL, upstream.URL))

	g.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/users/7", nil))
	g.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	records, err := g.store.Query(context.Background(), api.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "getUserById", records[0].Route)
	assert.Equal(t, "/users/7", records[0].Path)
	assert.Equal(t, "/users/7", records[0].UpstreamPath)
	assert.Equal(t, http.StatusOK, records[0].Status)
	assert.Equal(t, 2, records[0].ResponseSize)

	assert.Empty(t, records[1].Route)
	assert.Equal(t, http.StatusNotFound, records[1].Status)
	assert.Contains(t, records[1].Error, "route not found")
}

func TestGateway_ResponseFilterFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		io.WriteString(w, "compressed")
	}))
	defer upstream.Close()

	g := newTestGateway(t, demoRoutes(upstream.URL, upstream.URL))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "filter modify_response_body failed", decodeError(t, w).Error)
}

func TestGateway_SetTable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	}))
	defer upstream.Close()

	g := newTestGateway(t, demoRoutes(upstream.URL, upstream.URL))

	next, err := route.NewTable(context.Background(), &route.RouteFile{
		Version: 1,
		Routes: []route.RouteSpec{
			{ID: "fresh", Predicate: route.PredicateSpec{Path: "/fresh"}, URI: upstream.URL},
		},
	}, filter.BuildConfig{Logger: newTestLogger()})
	require.NoError(t, err)
	g.SetTable(next)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/fresh", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/fresh", w.Body.String())

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "/hello", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("GET /x: %w", route.ErrRouteNotFound), http.StatusNotFound},
		{"rewrite", &rewrite.Error{Pattern: "/a/(.*)", Path: "/b"}, http.StatusInternalServerError},
		{"filter", &filter.Error{Filter: "set_path", Cause: errors.New("missing var")}, http.StatusInternalServerError},
		{"body too large", &filter.Error{Filter: "modify_response_body", Cause: &exchange.BodyTooLargeError{Limit: 1}}, http.StatusInternalServerError},
		{"unavailable", fmt.Errorf("%w: refused", forward.ErrUpstreamUnavailable), http.StatusBadGateway},
		{"timeout", fmt.Errorf("%w: deadline", forward.ErrUpstreamTimeout), http.StatusGatewayTimeout},
		{"client closed", fmt.Errorf("%w: canceled", forward.ErrClientClosed), StatusClientClosedRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	g := newTestGateway(t, demoRoutes("http://127.0.0.1:1", "http://127.0.0.1:1"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}
