package filter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
)

var errNoResponse = errors.New("no upstream response")

// AddRequestHeader adds a header to the request sent upstream.
type AddRequestHeader struct {
	name, value string
}

func NewAddRequestHeader(name, value string) *AddRequestHeader {
	return &AddRequestHeader{name: name, value: value}
}

func (f *AddRequestHeader) Name() string     { return TypeAddRequestHeader }
func (f *AddRequestHeader) Phase() api.Phase { return api.PhaseRequest }
func (f *AddRequestHeader) String() string   { return f.Name() + "(" + f.name + ": " + f.value + ")" }

func (f *AddRequestHeader) Process(_ context.Context, ex *exchange.Exchange) error {
	ex.Header.Add(f.name, f.value)
	return nil
}

// RemoveRequestHeader drops a header before forwarding.
type RemoveRequestHeader struct {
	name string
}

func NewRemoveRequestHeader(name string) *RemoveRequestHeader {
	return &RemoveRequestHeader{name: name}
}

func (f *RemoveRequestHeader) Name() string     { return TypeRemoveRequestHeader }
func (f *RemoveRequestHeader) Phase() api.Phase { return api.PhaseRequest }
func (f *RemoveRequestHeader) String() string   { return f.Name() + "(" + f.name + ")" }

func (f *RemoveRequestHeader) Process(_ context.Context, ex *exchange.Exchange) error {
	ex.Header.Del(f.name)
	return nil
}

// LogRequestHeader logs the values of one request header. It never changes
// the exchange.
type LogRequestHeader struct {
	name   string
	logger *slog.Logger
}

func NewLogRequestHeader(name string, logger *slog.Logger) *LogRequestHeader {
	return &LogRequestHeader{name: name, logger: logger}
}

func (f *LogRequestHeader) Name() string     { return TypeLogRequestHeader }
func (f *LogRequestHeader) Phase() api.Phase { return api.PhaseRequest }
func (f *LogRequestHeader) String() string   { return f.Name() + "(" + f.name + ")" }

func (f *LogRequestHeader) Process(_ context.Context, ex *exchange.Exchange) error {
	f.logger.Info("request header value",
		"header", f.name,
		"values", ex.Header.Values(f.name),
		"route", ex.RouteID,
		"request_id", ex.ID,
	)
	return nil
}

// AddResponseHeader adds a header to the response returned to the caller.
type AddResponseHeader struct {
	name, value string
}

func NewAddResponseHeader(name, value string) *AddResponseHeader {
	return &AddResponseHeader{name: name, value: value}
}

func (f *AddResponseHeader) Name() string     { return TypeAddResponseHeader }
func (f *AddResponseHeader) Phase() api.Phase { return api.PhaseResponse }
func (f *AddResponseHeader) String() string   { return f.Name() + "(" + f.name + ": " + f.value + ")" }

func (f *AddResponseHeader) Process(_ context.Context, ex *exchange.Exchange) error {
	ex.Response.Header.Add(f.name, f.value)
	return nil
}

// RemoveResponseHeader drops an upstream response header.
type RemoveResponseHeader struct {
	name string
}

func NewRemoveResponseHeader(name string) *RemoveResponseHeader {
	return &RemoveResponseHeader{name: name}
}

func (f *RemoveResponseHeader) Name() string     { return TypeRemoveResponseHeader }
func (f *RemoveResponseHeader) Phase() api.Phase { return api.PhaseResponse }
func (f *RemoveResponseHeader) String() string   { return f.Name() + "(" + f.name + ")" }

func (f *RemoveResponseHeader) Process(_ context.Context, ex *exchange.Exchange) error {
	ex.Response.Header.Del(f.name)
	return nil
}
