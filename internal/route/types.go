package route

import "github.com/tkingovr/routegate/internal/filter"

// RouteFile represents the top-level YAML route configuration.
type RouteFile struct {
	Version  int         `yaml:"version" json:"version"`
	Settings Settings    `yaml:"settings" json:"settings"`
	Routes   []RouteSpec `yaml:"routes" json:"routes"`
}

// Settings contains global gateway settings.
type Settings struct {
	Listen          string `yaml:"listen,omitempty" json:"listen,omitempty"`
	AdminAddr       string `yaml:"admin_addr,omitempty" json:"admin_addr,omitempty"`
	UpstreamTimeout string `yaml:"upstream_timeout,omitempty" json:"upstream_timeout,omitempty"`
	AccessLogDir    string `yaml:"access_log_dir,omitempty" json:"access_log_dir,omitempty"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes,omitempty" json:"max_body_bytes,omitempty"`
}

// RouteSpec is the declarative form of a single route.
type RouteSpec struct {
	ID        string        `yaml:"id" json:"id"`
	Predicate PredicateSpec `yaml:"predicate" json:"predicate"`
	URI       string        `yaml:"uri" json:"uri"`
	Rewrite   *RewriteSpec  `yaml:"rewrite,omitempty" json:"rewrite,omitempty"`
	Filters   []filter.Spec `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// PredicateSpec specifies the conditions a request must meet.
type PredicateSpec struct {
	// Path is a literal path, a prefix ending in /**, a template with
	// {name} segments, or a glob.
	Path    string   `yaml:"path" json:"path"`
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// Rego is an optional Rego module in package routegate. The route
	// matches only if its allow rule evaluates to true.
	Rego string `yaml:"rego,omitempty" json:"rego,omitempty"`
}

// RewriteSpec rewrites the path before request filters run.
type RewriteSpec struct {
	Regex       string `yaml:"regex" json:"regex"`
	Replacement string `yaml:"replacement" json:"replacement"`
}
