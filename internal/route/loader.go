package route

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/rewrite"
)

// LoadFile reads and validates a YAML route file.
func LoadFile(path string) (*RouteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML route data. Unknown keys are
// rejected so that typos in filter arguments do not go unnoticed.
func LoadBytes(data []byte) (*RouteFile, error) {
	var rf RouteFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parsing route YAML: %w", err)
	}
	if err := validate(&rf); err != nil {
		return nil, err
	}
	return &rf, nil
}

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

func validate(rf *RouteFile) error {
	if rf.Version != 1 {
		return fmt.Errorf("unsupported route file version: %d (expected 1)", rf.Version)
	}
	if rf.Settings.MaxBodyBytes < 0 {
		return fmt.Errorf("settings: max_body_bytes must not be negative")
	}

	seen := make(map[string]bool)
	for i, r := range rf.Routes {
		if r.ID == "" {
			return fmt.Errorf("route %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("route %q: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if !strings.HasPrefix(r.Predicate.Path, "/") {
			return fmt.Errorf("route %q: predicate.path must start with /", r.ID)
		}
		if _, err := compilePath(r.Predicate.Path); err != nil {
			return fmt.Errorf("route %q: %w", r.ID, err)
		}
		for _, m := range r.Predicate.Methods {
			if !validMethods[strings.ToUpper(m)] {
				return fmt.Errorf("route %q: invalid method %q", r.ID, m)
			}
		}

		if err := validateURI(r.URI); err != nil {
			return fmt.Errorf("route %q: %w", r.ID, err)
		}

		if r.Rewrite != nil {
			if _, err := rewrite.Compile(r.Rewrite.Regex, r.Rewrite.Replacement); err != nil {
				return fmt.Errorf("route %q: %w", r.ID, err)
			}
		}

		for j, fs := range r.Filters {
			if err := filter.Validate(fs); err != nil {
				return fmt.Errorf("route %q filter %d: %w", r.ID, j, err)
			}
		}
	}

	return nil
}

func validateURI(raw string) error {
	if raw == "" {
		return fmt.Errorf("uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid uri %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("uri %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("uri %q: host is required", raw)
	}
	return nil
}
