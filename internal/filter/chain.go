package filter

import (
	"context"
	"log/slog"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
)

// Chain executes the filters of one route in registration order, split
// into a request phase and a response phase.
type Chain struct {
	all      []Filter
	request  []Filter
	response []Filter
	logger   *slog.Logger
}

// NewChain creates a new filter chain. The relative order of filters within
// each phase is preserved.
func NewChain(logger *slog.Logger, filters ...Filter) *Chain {
	c := &Chain{
		all:    filters,
		logger: logger,
	}
	for _, f := range filters {
		switch f.Phase() {
		case api.PhaseResponse:
			c.response = append(c.response, f)
		default:
			c.request = append(c.request, f)
		}
	}
	return c
}

// ApplyRequest runs all request filters. The exchange is marked
// request-complete only if every filter succeeded.
func (c *Chain) ApplyRequest(ctx context.Context, ex *exchange.Exchange) error {
	for _, f := range c.request {
		if err := f.Process(ctx, ex); err != nil {
			return &Error{Filter: f.Name(), Cause: err}
		}
		c.logger.Debug("request filter executed",
			"filter", f.Name(),
			"route", ex.RouteID,
			"path", ex.Path,
			"request_id", ex.ID,
		)
	}
	ex.MarkRequestDone()
	return nil
}

// ApplyResponse runs all response filters. It refuses to run on an exchange
// whose request phase did not complete or that has no response yet.
func (c *Chain) ApplyResponse(ctx context.Context, ex *exchange.Exchange) error {
	if !ex.RequestDone() {
		return &Error{Filter: "response", Cause: ErrRequestIncomplete}
	}
	if ex.Response == nil {
		return &Error{Filter: "response", Cause: errNoResponse}
	}
	for _, f := range c.response {
		if err := f.Process(ctx, ex); err != nil {
			return &Error{Filter: f.Name(), Cause: err}
		}
		c.logger.Debug("response filter executed",
			"filter", f.Name(),
			"route", ex.RouteID,
			"status", ex.Response.StatusCode,
			"request_id", ex.ID,
		)
	}
	return nil
}

// Filters returns every filter in registration order.
func (c *Chain) Filters() []Filter {
	return c.all
}

// ModifiesBody reports whether any filter rewrites the response body.
func (c *Chain) ModifiesBody() bool {
	for _, f := range c.response {
		if m, ok := f.(interface{ ModifiesBody() bool }); ok && m.ModifiesBody() {
			return true
		}
	}
	return false
}
