package api

import "time"

// QueryFilter defines criteria for querying access records.
type QueryFilter struct {
	Since     time.Time `json:"since,omitempty"`
	Until     time.Time `json:"until,omitempty"`
	Method    string    `json:"method,omitempty"`
	Route     string    `json:"route,omitempty"`
	Status    int       `json:"status,omitempty"`
	OnlyError bool      `json:"only_error,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// AccessStats provides summary statistics for the admin overview.
type AccessStats struct {
	TotalRequests int            `json:"total_requests"`
	SuccessCount  int            `json:"success_count"`
	ClientErrors  int            `json:"client_errors"`
	ServerErrors  int            `json:"server_errors"`
	ByRoute       map[string]int `json:"by_route"`
	ByStatus      map[int]int    `json:"by_status"`
}
