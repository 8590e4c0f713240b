package filter

import (
	"fmt"
	"log/slog"
)

// Filter type names as used in route files.
const (
	TypeAddRequestHeader     = "add_request_header"
	TypeRemoveRequestHeader  = "remove_request_header"
	TypeLogRequestHeader     = "log_request_header"
	TypeStripPrefix          = "strip_prefix"
	TypeSetPath              = "set_path"
	TypeAddResponseHeader    = "add_response_header"
	TypeRemoveResponseHeader = "remove_response_header"
	TypeModifyResponseBody   = "modify_response_body"
)

// Spec is the declarative form of a filter in a route file.
type Spec struct {
	Type      string `yaml:"type" json:"type"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Value     string `yaml:"value,omitempty" json:"value,omitempty"`
	Parts     int    `yaml:"parts,omitempty" json:"parts,omitempty"`
	Template  string `yaml:"template,omitempty" json:"template,omitempty"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// BuildConfig holds the shared dependencies for building filters.
type BuildConfig struct {
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Build constructs a filter from its spec.
func Build(spec Spec, cfg BuildConfig) (Filter, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	switch spec.Type {
	case TypeAddRequestHeader:
		return NewAddRequestHeader(spec.Name, spec.Value), nil
	case TypeRemoveRequestHeader:
		return NewRemoveRequestHeader(spec.Name), nil
	case TypeLogRequestHeader:
		return NewLogRequestHeader(spec.Name, cfg.Logger), nil
	case TypeStripPrefix:
		return NewStripPrefix(spec.Parts), nil
	case TypeSetPath:
		return NewSetPath(spec.Template), nil
	case TypeAddResponseHeader:
		return NewAddResponseHeader(spec.Name, spec.Value), nil
	case TypeRemoveResponseHeader:
		return NewRemoveResponseHeader(spec.Name), nil
	case TypeModifyResponseBody:
		t, err := LookupTransform(spec.Transform)
		if err != nil {
			return nil, err
		}
		name := spec.Transform
		if name == "" {
			name = "identity"
		}
		return NewModifyResponseBody(name, t, cfg.MaxBodyBytes, cfg.Logger), nil
	}
	return nil, fmt.Errorf("unknown filter type %q", spec.Type)
}

// BuildChain builds every spec in order and returns them as a chain.
func BuildChain(specs []Spec, cfg BuildConfig) (*Chain, error) {
	filters := make([]Filter, 0, len(specs))
	for i, s := range specs {
		f, err := Build(s, cfg)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return NewChain(cfg.Logger, filters...), nil
}

// Validate checks that a spec carries the arguments its type needs.
func Validate(spec Spec) error {
	switch spec.Type {
	case TypeAddRequestHeader, TypeAddResponseHeader:
		if spec.Name == "" {
			return fmt.Errorf("%s: name is required", spec.Type)
		}
	case TypeRemoveRequestHeader, TypeRemoveResponseHeader, TypeLogRequestHeader:
		if spec.Name == "" {
			return fmt.Errorf("%s: name is required", spec.Type)
		}
	case TypeStripPrefix:
		if spec.Parts <= 0 {
			return fmt.Errorf("%s: parts must be positive", spec.Type)
		}
	case TypeSetPath:
		if spec.Template == "" || spec.Template[0] != '/' {
			return fmt.Errorf("%s: template must start with /", spec.Type)
		}
		if _, err := NewSetPath(spec.Template).Placeholders(); err != nil {
			return fmt.Errorf("%s: %w", spec.Type, err)
		}
	case TypeModifyResponseBody:
		if _, err := LookupTransform(spec.Transform); err != nil {
			return fmt.Errorf("%s: %w", spec.Type, err)
		}
	case "":
		return fmt.Errorf("filter type is required")
	default:
		return fmt.Errorf("unknown filter type %q", spec.Type)
	}
	return nil
}
