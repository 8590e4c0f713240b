package route

import (
	"context"
	"net/http"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
	"github.com/tkingovr/routegate/internal/filter"
)

// Check performs a dry run of matching and path rewriting for req without
// contacting any upstream. Only path filters are applied.
func (t *Table) Check(ctx context.Context, req api.MatchRequest) api.MatchResponse {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	r, err := http.NewRequestWithContext(ctx, method, req.Path, nil)
	if err != nil {
		return api.MatchResponse{Error: err.Error()}
	}
	for name, values := range req.Headers {
		for _, v := range values {
			r.Header.Add(name, v)
		}
	}

	ex := exchange.New(r, "check")
	rt, err := t.Match(ctx, ex)
	if err != nil {
		return api.MatchResponse{Error: err.Error()}
	}

	resp := api.MatchResponse{
		Matched: true,
		Route:   rt.ID,
		URI:     rt.URI.String(),
	}
	if len(ex.Vars) > 0 {
		resp.Vars = ex.Vars
	}
	if err := rt.RewritePath(ex); err != nil {
		resp.Error = err.Error()
		return resp
	}
	for _, f := range rt.Filters.Filters() {
		switch f.(type) {
		case *filter.StripPrefix, *filter.SetPath:
			if err := f.Process(ctx, ex); err != nil {
				resp.Error = (&filter.Error{Filter: f.Name(), Cause: err}).Error()
				return resp
			}
		}
	}
	resp.Upstream = rt.Target(ex).String()
	return resp
}
