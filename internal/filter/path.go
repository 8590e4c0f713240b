package filter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
)

// StripPrefix removes the first n path segments before forwarding.
type StripPrefix struct {
	parts int
}

func NewStripPrefix(parts int) *StripPrefix {
	return &StripPrefix{parts: parts}
}

func (f *StripPrefix) Name() string     { return TypeStripPrefix }
func (f *StripPrefix) Phase() api.Phase { return api.PhaseRequest }
func (f *StripPrefix) String() string   { return f.Name() + "(" + strconv.Itoa(f.parts) + ")" }

func (f *StripPrefix) Process(_ context.Context, ex *exchange.Exchange) error {
	segs := strings.Split(strings.TrimPrefix(ex.EscapedPath(), "/"), "/")
	if f.parts >= len(segs) {
		return ex.SetEscapedPath("/")
	}
	return ex.SetEscapedPath("/" + strings.Join(segs[f.parts:], "/"))
}

// SetPath replaces the path with a template whose {name} placeholders are
// filled from the variables captured by the route predicate. Values are
// path-escaped, so a captured "a/b" stays one segment.
type SetPath struct {
	template string
}

func NewSetPath(template string) *SetPath {
	return &SetPath{template: template}
}

func (f *SetPath) Name() string     { return TypeSetPath }
func (f *SetPath) Phase() api.Phase { return api.PhaseRequest }
func (f *SetPath) String() string   { return f.Name() + "(" + f.template + ")" }

// Placeholders returns the variable names the template references.
func (f *SetPath) Placeholders() ([]string, error) {
	var names []string
	_, err := expandPathTemplate(f.template, func(name string) (string, bool) {
		names = append(names, name)
		return "", true
	})
	return names, err
}

func (f *SetPath) Process(_ context.Context, ex *exchange.Exchange) error {
	path, err := expandPathTemplate(f.template, func(name string) (string, bool) {
		v, ok := ex.Vars[name]
		return url.PathEscape(v), ok
	})
	if err != nil {
		return err
	}
	return ex.SetEscapedPath(path)
}

func expandPathTemplate(template string, lookup func(name string) (string, bool)) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", template)
		}
		name := rest[open+1 : open+end]
		val, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("path variable %q not captured by route", name)
		}
		b.WriteString(rest[:open])
		b.WriteString(val)
		rest = rest[open+end+1:]
	}
}
