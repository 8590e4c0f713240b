// Package route loads route files and compiles them into an immutable
// table that matches requests to upstream targets.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/rewrite"
)

// ErrRouteNotFound is returned when no route predicate accepts a request.
var ErrRouteNotFound = errors.New("route not found")

// Route is a compiled, immutable route.
type Route struct {
	ID        string
	Predicate *Predicate
	URI       *url.URL
	Rewrite   *rewrite.Rule
	Filters   *filter.Chain
}

// Table holds the routes in registration order. It is built once and
// never mutated, so concurrent Match calls need no locking.
type Table struct {
	routes []*Route
	file   *RouteFile
	logger *slog.Logger
}

// NewTable compiles every route of a validated route file.
func NewTable(ctx context.Context, rf *RouteFile, cfg filter.BuildConfig) (*Table, error) {
	t := &Table{
		routes: make([]*Route, 0, len(rf.Routes)),
		file:   rf,
		logger: cfg.Logger,
	}
	for _, spec := range rf.Routes {
		r, err := compileRoute(ctx, spec, cfg)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", spec.ID, err)
		}
		t.routes = append(t.routes, r)
	}
	return t, nil
}

func compileRoute(ctx context.Context, spec RouteSpec, cfg filter.BuildConfig) (*Route, error) {
	pred, err := NewPredicate(ctx, spec.ID, spec.Predicate)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(spec.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}

	var rw *rewrite.Rule
	if spec.Rewrite != nil {
		rw, err = rewrite.Compile(spec.Rewrite.Regex, spec.Rewrite.Replacement)
		if err != nil {
			return nil, err
		}
	}

	chain, err := filter.BuildChain(spec.Filters, cfg)
	if err != nil {
		return nil, err
	}
	if err := checkPathVars(pred, chain); err != nil {
		return nil, err
	}

	return &Route{
		ID:        spec.ID,
		Predicate: pred,
		URI:       u,
		Rewrite:   rw,
		Filters:   chain,
	}, nil
}

// checkPathVars rejects set_path templates that reference variables the
// predicate never captures.
func checkPathVars(pred *Predicate, chain *filter.Chain) error {
	captured := make(map[string]bool)
	for _, v := range pred.Vars() {
		captured[v] = true
	}
	for _, f := range chain.Filters() {
		sp, ok := f.(*filter.SetPath)
		if !ok {
			continue
		}
		names, err := sp.Placeholders()
		if err != nil {
			return fmt.Errorf("%s: %w", sp.Name(), err)
		}
		for _, name := range names {
			if !captured[name] {
				return fmt.Errorf("%s: variable %q is not captured by predicate path %q", sp.Name(), name, pred.Path())
			}
		}
	}
	return nil
}

// Match returns the first route whose predicate accepts the exchange and
// records the route id and captured variables on it. A guard that fails to
// evaluate is logged and treated as not matching.
func (t *Table) Match(ctx context.Context, ex *exchange.Exchange) (*Route, error) {
	for _, r := range t.routes {
		vars, ok, err := r.Predicate.Match(ctx, ex)
		if err != nil {
			t.logger.Warn("route guard evaluation failed",
				"route", r.ID,
				"error", err,
				"request_id", ex.ID,
			)
			continue
		}
		if !ok {
			continue
		}
		ex.RouteID = r.ID
		for k, v := range vars {
			ex.Vars[k] = v
		}
		return r, nil
	}
	return nil, fmt.Errorf("%s %s: %w", ex.Method, ex.Path, ErrRouteNotFound)
}

// Routes returns the routes in registration order.
func (t *Table) Routes() []*Route {
	return t.routes
}

// File returns the route file the table was built from.
func (t *Table) File() *RouteFile {
	return t.file
}

// Info describes every route for listings.
func (t *Table) Info() []api.RouteInfo {
	out := make([]api.RouteInfo, 0, len(t.routes))
	for i, r := range t.routes {
		info := api.RouteInfo{
			ID:        r.ID,
			Path:      r.Predicate.Path(),
			Methods:   t.file.Routes[i].Predicate.Methods,
			URI:       r.URI.String(),
			RegoGuard: r.Predicate.HasGuard(),
		}
		if r.Rewrite != nil {
			info.Rewrite = r.Rewrite.String()
		}
		for _, f := range r.Filters.Filters() {
			info.Filters = append(info.Filters, filter.Describe(f))
		}
		out = append(out, info)
	}
	return out
}

// RewritePath applies the route's rewrite rule, if any, to the escaped path
// of ex so that encoded characters inside a segment survive the rewrite.
func (r *Route) RewritePath(ex *exchange.Exchange) error {
	if r.Rewrite == nil {
		return nil
	}
	path, err := r.Rewrite.Apply(ex.EscapedPath())
	if err != nil {
		return err
	}
	if err := ex.SetEscapedPath(path); err != nil {
		return fmt.Errorf("rewrite produced invalid path %q: %w", path, err)
	}
	return nil
}

// Target returns the upstream URL for a route and an already rewritten
// path. Only scheme and host come from the route URI; the path and query
// are those of the exchange.
func (r *Route) Target(ex *exchange.Exchange) *url.URL {
	return &url.URL{
		Scheme:   r.URI.Scheme,
		User:     r.URI.User,
		Host:     r.URI.Host,
		Path:     ex.Path,
		RawPath:  ex.RawPath,
		RawQuery: ex.RawQuery,
	}
}
