// Package rewrite applies regex-based path rewrites with named captures.
//
// Patterns use named groups, either (?<name>...) or (?P<name>...), and the
// replacement template references them as ${name}:
//
//	/users/(?<segment>.*)  ->  /users/${segment}
package rewrite

import (
	"fmt"
	"regexp"
)

// Error reports a path that does not match the rewrite pattern. For a path
// that already satisfied the route predicate this is an invariant
// violation, not a client error.
type Error struct {
	Pattern string
	Path    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rewrite: path %q does not match pattern %q", e.Path, e.Pattern)
}

// Rule is a compiled rewrite rule. It is safe for concurrent use.
type Rule struct {
	re       *regexp.Regexp
	template string
}

// Compile validates the pattern and template and returns a Rule.
func Compile(pattern, template string) (*Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid rewrite pattern %q: %w", pattern, err)
	}

	names := make(map[string]bool)
	for _, n := range re.SubexpNames() {
		if n != "" {
			names[n] = true
		}
	}
	for _, ref := range templateRefs(template) {
		if !names[ref] {
			return nil, fmt.Errorf("rewrite template %q references unknown group %q", template, ref)
		}
	}

	return &Rule{re: re, template: template}, nil
}

// Apply rewrites path. Only the first match is replaced; text around the
// match is kept as is.
func (r *Rule) Apply(path string) (string, error) {
	loc := r.re.FindStringSubmatchIndex(path)
	if loc == nil {
		return "", &Error{Pattern: r.Pattern(), Path: path}
	}
	var dst []byte
	dst = append(dst, path[:loc[0]]...)
	dst = r.re.ExpandString(dst, r.template, path, loc)
	dst = append(dst, path[loc[1]:]...)
	return string(dst), nil
}

// Extract returns the named capture from path, if the pattern matches.
func (r *Rule) Extract(path, name string) (string, bool) {
	m := r.re.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	idx := r.re.SubexpIndex(name)
	if idx < 0 {
		return "", false
	}
	return m[idx], true
}

// Pattern returns the source regular expression.
func (r *Rule) Pattern() string { return r.re.String() }

// Template returns the replacement template.
func (r *Rule) Template() string { return r.template }

func (r *Rule) String() string { return r.Pattern() + " -> " + r.Template() }

// Rewrite compiles pattern and template and applies them to path.
func Rewrite(pattern, template, path string) (string, error) {
	r, err := Compile(pattern, template)
	if err != nil {
		return "", err
	}
	return r.Apply(path)
}

var refRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func templateRefs(template string) []string {
	var refs []string
	for _, m := range refRe.FindAllStringSubmatch(template, -1) {
		// numeric references like ${1} are not matched by refRe
		refs = append(refs, m[1])
	}
	return refs
}
