package route

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/tkingovr/routegate/internal/exchange"
)

// pathMatcher reports whether a request path matches and returns any
// captured template variables.
type pathMatcher interface {
	match(path string) (map[string]string, bool)
}

type literalPath string

func (p literalPath) match(path string) (map[string]string, bool) {
	return nil, path == string(p)
}

// prefixPath matches the prefix itself and anything below it.
type prefixPath string

func (p prefixPath) match(path string) (map[string]string, bool) {
	prefix := string(p)
	if path == prefix || strings.HasPrefix(path, prefix+"/") {
		return nil, true
	}
	return nil, false
}

// templatePath matches segment by segment; {name} captures one segment.
type templatePath struct {
	segments []string
	vars     []string // "" for literal segments
}

func (p *templatePath) match(path string) (map[string]string, bool) {
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) != len(p.segments) {
		return nil, false
	}
	vars := make(map[string]string)
	for i, s := range segs {
		if name := p.vars[i]; name != "" {
			if s == "" {
				return nil, false
			}
			vars[name] = s
			continue
		}
		if s != p.segments[i] {
			return nil, false
		}
	}
	return vars, true
}

type globPath struct {
	g glob.Glob
}

func (p globPath) match(path string) (map[string]string, bool) {
	return nil, p.g.Match(path)
}

var (
	varSegment = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
	globMeta   = "*?[{"
)

// compilePath picks the cheapest matcher that can express the pattern.
func compilePath(pattern string) (pathMatcher, error) {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.ContainsAny(prefix, globMeta) {
		return prefixPath(prefix), nil
	}

	if strings.Contains(pattern, "{") {
		if tp, ok := compileTemplate(pattern); ok {
			return tp, nil
		}
	}

	if strings.ContainsAny(pattern, globMeta) {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
		return globPath{g: g}, nil
	}

	return literalPath(pattern), nil
}

func compileTemplate(pattern string) (*templatePath, bool) {
	segs := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	tp := &templatePath{segments: segs, vars: make([]string, len(segs))}
	seen := make(map[string]bool)
	for i, s := range segs {
		if m := varSegment.FindStringSubmatch(s); m != nil {
			if seen[m[1]] {
				return nil, false
			}
			seen[m[1]] = true
			tp.vars[i] = m[1]
			continue
		}
		if strings.ContainsAny(s, globMeta+"}") {
			return nil, false
		}
	}
	return tp, true
}

// Predicate decides whether a route applies to a request.
type Predicate struct {
	path    string
	matcher pathMatcher
	methods map[string]bool
	guard   *RegoGuard
}

// NewPredicate compiles a predicate spec. The Rego guard, if any, is
// prepared once here.
func NewPredicate(ctx context.Context, routeID string, spec PredicateSpec) (*Predicate, error) {
	m, err := compilePath(spec.Path)
	if err != nil {
		return nil, err
	}
	p := &Predicate{path: spec.Path, matcher: m}

	if len(spec.Methods) > 0 {
		p.methods = make(map[string]bool, len(spec.Methods))
		for _, method := range spec.Methods {
			p.methods[strings.ToUpper(method)] = true
		}
	}

	if spec.Rego != "" {
		g, err := NewRegoGuard(ctx, routeID, spec.Rego)
		if err != nil {
			return nil, err
		}
		p.guard = g
	}
	return p, nil
}

// Match reports whether ex satisfies the predicate and returns the
// captured template variables. An error is returned only when the Rego
// guard fails to evaluate.
func (p *Predicate) Match(ctx context.Context, ex *exchange.Exchange) (map[string]string, bool, error) {
	if p.methods != nil && !p.methods[ex.Method] {
		return nil, false, nil
	}
	vars, ok := p.matcher.match(ex.Path)
	if !ok {
		return nil, false, nil
	}
	if p.guard != nil {
		allowed, err := p.guard.Allow(ctx, guardInput(ex))
		if err != nil {
			return nil, false, err
		}
		if !allowed {
			return nil, false, nil
		}
	}
	return vars, true, nil
}

// Path returns the source path pattern.
func (p *Predicate) Path() string { return p.path }

// Vars returns the names of the template variables the path captures.
func (p *Predicate) Vars() []string {
	tp, ok := p.matcher.(*templatePath)
	if !ok {
		return nil
	}
	var names []string
	for _, v := range tp.vars {
		if v != "" {
			names = append(names, v)
		}
	}
	return names
}

// HasGuard reports whether a Rego guard is attached.
func (p *Predicate) HasGuard() bool { return p.guard != nil }
