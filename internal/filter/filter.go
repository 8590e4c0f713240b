// Package filter implements the phased filter chain and the built-in
// request and response filters.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
)

// Filter is a single step in the request processing pipeline.
type Filter interface {
	// Name returns the filter name for logging and error reports.
	Name() string

	// Phase tells the chain whether the filter runs before or after the
	// upstream call.
	Phase() api.Phase

	// Process may read and modify the exchange (headers, path, body) or
	// produce side effects such as logging. Returning an error aborts the chain.
	Process(ctx context.Context, ex *exchange.Exchange) error
}

// ErrRequestIncomplete is reported when response filters are asked to run
// on an exchange whose request filters did not all succeed.
var ErrRequestIncomplete = errors.New("request filters have not completed")

// Error is returned by the chain when a named filter fails.
type Error struct {
	Filter string
	Cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filter %q: %v", e.Filter, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Describe returns a human-readable form of f including its arguments.
func Describe(f Filter) string {
	if s, ok := f.(fmt.Stringer); ok {
		return s.String()
	}
	return f.Name()
}
