package route

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"

	"github.com/tkingovr/routegate/internal/exchange"
)

const regoPackage = "data.routegate"

// RegoGuard is an embedded OPA query attached to a route predicate.
//
// The module must be in package routegate and define a boolean allow rule.
// Input available to the policy:
//
//	input.method:  string
//	input.path:    string
//	input.query:   object, first value per key
//	input.headers: object, lower-case names, first value per header
//
// An undefined allow is treated as false.
type RegoGuard struct {
	query rego.PreparedEvalQuery
}

// NewRegoGuard parses and prepares the Rego source of a route.
func NewRegoGuard(ctx context.Context, routeID, source string) (*RegoGuard, error) {
	name := routeID + ".rego"
	mod, err := ast.ParseModuleWithOpts(name, source, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parsing Rego guard: %w", err)
	}
	if got := mod.Package.Path.String(); got != regoPackage {
		return nil, fmt.Errorf("rego guard must be in package routegate, got %s", strings.TrimPrefix(got, "data."))
	}

	r := rego.New(
		rego.Query(regoPackage+".allow"),
		rego.Module(name, source),
		rego.Store(inmem.New()),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing Rego guard: %w", err)
	}
	return &RegoGuard{query: query}, nil
}

// Allow evaluates the guard. PreparedEvalQuery is safe for concurrent use.
func (g *RegoGuard) Allow(ctx context.Context, input map[string]any) (bool, error) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluating Rego guard: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("rego guard allow is %T, expected bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

func guardInput(ex *exchange.Exchange) map[string]any {
	headers := make(map[string]any, len(ex.Header))
	for k, v := range ex.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	query := make(map[string]any)
	if values, err := url.ParseQuery(ex.RawQuery); err == nil {
		for k, v := range values {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}
	}
	return map[string]any{
		"method":  ex.Method,
		"path":    ex.Path,
		"query":   query,
		"headers": headers,
	}
}
