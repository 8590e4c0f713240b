package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/exchange"
)

// Transform rewrites a fully buffered response body.
type Transform func(body []byte) ([]byte, error)

// Identity returns the body unchanged.
func Identity(body []byte) ([]byte, error) { return body, nil }

// Uppercase maps the body to upper case using locale-neutral rules.
// Applying it twice yields the same result as applying it once.
func Uppercase(body []byte) ([]byte, error) {
	// cases.Caser keeps state and is not safe for concurrent use.
	return cases.Upper(language.Und).Bytes(body), nil
}

// Lowercase maps the body to lower case using locale-neutral rules.
func Lowercase(body []byte) ([]byte, error) {
	return cases.Lower(language.Und).Bytes(body), nil
}

var transforms = map[string]Transform{
	"identity":  Identity,
	"uppercase": Uppercase,
	"lowercase": Lowercase,
}

// LookupTransform returns the named transform. An empty name is identity.
func LookupTransform(name string) (Transform, error) {
	if name == "" {
		return Identity, nil
	}
	t, ok := transforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown body transform %q (known: %s)", name, strings.Join(TransformNames(), ", "))
	}
	return t, nil
}

// TransformNames lists the registered transforms.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ModifyResponseBody buffers the whole upstream body, applies a transform
// and replaces the body with the result.
type ModifyResponseBody struct {
	name      string
	transform Transform
	limit     int64
	logger    *slog.Logger
}

func NewModifyResponseBody(name string, t Transform, limit int64, logger *slog.Logger) *ModifyResponseBody {
	if t == nil {
		t = Identity
	}
	return &ModifyResponseBody{name: name, transform: t, limit: limit, logger: logger}
}

func (f *ModifyResponseBody) Name() string     { return TypeModifyResponseBody }
func (f *ModifyResponseBody) Phase() api.Phase { return api.PhaseResponse }
func (f *ModifyResponseBody) String() string   { return f.Name() + "(" + f.name + ")" }

// ModifiesBody tells the gateway to request an unencoded upstream body.
func (f *ModifyResponseBody) ModifiesBody() bool { return true }

func (f *ModifyResponseBody) Process(_ context.Context, ex *exchange.Exchange) error {
	if enc := ex.Response.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return fmt.Errorf("cannot transform body with content encoding %q", enc)
	}
	body, err := ex.Response.Buffer(f.limit)
	if err != nil {
		return fmt.Errorf("buffering response body: %w", err)
	}

	f.logger.Info("upstream response",
		"route", ex.RouteID,
		"body", string(body),
		"headers", ex.Response.Header,
		"request_id", ex.ID,
	)

	out, err := f.transform(body)
	if err != nil {
		return fmt.Errorf("transform %q: %w", f.name, err)
	}
	ex.Response.SetBody(out)
	ex.Response.Header.Del("Content-Length")

	f.logger.Info("response returned by gateway",
		"route", ex.RouteID,
		"body", string(out),
		"request_id", ex.ID,
	)
	return nil
}
