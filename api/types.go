// Package api defines the types shared by the admin API, the access log
// and the CLI.
package api

import "time"

// Phase tells whether a filter runs before or after the upstream call.
type Phase string

const (
	PhaseRequest  Phase = "request"  // before forwarding
	PhaseResponse Phase = "response" // after the upstream replied
)

// AccessRecord represents a single request handled by the gateway.
type AccessRecord struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	UpstreamPath string        `json:"upstream_path,omitempty"`
	Route        string        `json:"route,omitempty"`
	Status       int           `json:"status"`
	Error        string        `json:"error,omitempty"`
	ResponseSize int           `json:"response_size,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// MatchRequest is used by the CLI `check` command and the admin API.
type MatchRequest struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Headers map[string][]string `json:"headers,omitempty"`
}

// MatchResponse is the result of a dry-run route match.
type MatchResponse struct {
	Matched  bool              `json:"matched"`
	Route    string            `json:"route,omitempty"`
	URI      string            `json:"uri,omitempty"`
	Upstream string            `json:"upstream,omitempty"` // full upstream URL
	Vars     map[string]string `json:"vars,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// RouteInfo describes a registered route for listings.
type RouteInfo struct {
	ID        string   `json:"id"`
	Path      string   `json:"path"`
	Methods   []string `json:"methods,omitempty"`
	URI       string   `json:"uri"`
	Rewrite   string   `json:"rewrite,omitempty"`
	Filters   []string `json:"filters,omitempty"`
	RegoGuard bool     `json:"rego_guard,omitempty"`
}

// ErrorBody is the JSON body written when the gateway fails a request.
type ErrorBody struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}
