package filter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkingovr/routegate/internal/exchange"
)

func TestUppercase_Idempotent(t *testing.T) {
	inputs := []string{"hello", "Hello World", `{"name":"leanne"}`, "straße", ""}
	for _, in := range inputs {
		once, err := Uppercase([]byte(in))
		require.NoError(t, err)
		twice, err := Uppercase(once)
		require.NoError(t, err)
		assert.Equal(t, string(once), string(twice), "input %q", in)
	}
}

func TestModifyResponseBody_Identity(t *testing.T) {
	f := NewModifyResponseBody("identity", nil, 0, newTestLogger())
	ex := newTestExchange("GET", "/hello")
	withResponse(ex, http.StatusOK, "Mixed Case")

	require.NoError(t, f.Process(context.Background(), ex))
	body, _ := io.ReadAll(ex.Response.Reader())
	assert.Equal(t, "Mixed Case", string(body))
}

func TestModifyResponseBody_DropsContentLength(t *testing.T) {
	f := NewModifyResponseBody("uppercase", Uppercase, 0, newTestLogger())
	ex := newTestExchange("GET", "/hello")
	withResponse(ex, http.StatusOK, "abc")
	ex.Response.Header.Set("Content-Length", "3")

	require.NoError(t, f.Process(context.Background(), ex))
	assert.Empty(t, ex.Response.Header.Get("Content-Length"))
}

func TestModifyResponseBody_RejectsEncodedBody(t *testing.T) {
	f := NewModifyResponseBody("uppercase", Uppercase, 0, newTestLogger())
	ex := newTestExchange("GET", "/hello")
	withResponse(ex, http.StatusOK, "\x1f\x8b")
	ex.Response.Header.Set("Content-Encoding", "gzip")

	assert.Error(t, f.Process(context.Background(), ex))
}

func TestModifyResponseBody_Limit(t *testing.T) {
	f := NewModifyResponseBody("uppercase", Uppercase, 2, newTestLogger())
	ex := newTestExchange("GET", "/hello")
	withResponse(ex, http.StatusOK, "too long")

	err := f.Process(context.Background(), ex)
	var tooLarge *exchange.BodyTooLargeError
	assert.True(t, errors.As(err, &tooLarge))
}

func TestModifyResponseBody_TransformError(t *testing.T) {
	failing := func([]byte) ([]byte, error) { return nil, errors.New("bad body") }
	f := NewModifyResponseBody("failing", failing, 0, newTestLogger())
	ex := newTestExchange("GET", "/hello")
	withResponse(ex, http.StatusOK, "x")

	assert.Error(t, f.Process(context.Background(), ex))
}

func TestHeaderFilters(t *testing.T) {
	ex := newTestExchange("GET", "/hello")
	ex.Header.Set("Cookie", "secret")

	require.NoError(t, NewRemoveRequestHeader("Cookie").Process(context.Background(), ex))
	assert.Empty(t, ex.Header.Get("Cookie"))

	withResponse(ex, http.StatusOK, "")
	ex.Response.Header.Set("Server", "upstream")
	require.NoError(t, NewRemoveResponseHeader("Server").Process(context.Background(), ex))
	assert.Empty(t, ex.Response.Header.Get("Server"))
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		path  string
		parts int
		want  string
	}{
		{"/api/users/1", 1, "/users/1"},
		{"/api/v1/users", 2, "/users"},
		{"/api", 1, "/"},
		{"/api", 3, "/"},
		{"/api/a%2Fb", 1, "/a/b"},
	}
	for _, tt := range tests {
		ex := newTestExchange("GET", tt.path)
		require.NoError(t, NewStripPrefix(tt.parts).Process(context.Background(), ex))
		assert.Equal(t, tt.want, ex.Path, "strip %d from %s", tt.parts, tt.path)
	}
}

func TestSetPath(t *testing.T) {
	ex := newTestExchange("GET", "/u/42")
	ex.Vars["id"] = "42"

	require.NoError(t, NewSetPath("/users/{id}").Process(context.Background(), ex))
	assert.Equal(t, "/users/42", ex.Path)

	err := NewSetPath("/users/{missing}").Process(context.Background(), ex)
	assert.Error(t, err)

	err = NewSetPath("/users/{id").Process(context.Background(), ex)
	assert.Error(t, err)
}

func TestPathFilters_KeepEncodedSlash(t *testing.T) {
	ex := newTestExchange("GET", "/api/a%2Fb")
	require.NoError(t, NewStripPrefix(1).Process(context.Background(), ex))
	assert.Equal(t, "/a%2Fb", ex.EscapedPath())

	ex.Vars["id"] = "a/b"
	require.NoError(t, NewSetPath("/users/{id}").Process(context.Background(), ex))
	assert.Equal(t, "/users/a/b", ex.Path)
	assert.Equal(t, "/users/a%2Fb", ex.EscapedPath())
}

func TestSetPath_Placeholders(t *testing.T) {
	names, err := NewSetPath("/{version}/items/{id}").Placeholders()
	require.NoError(t, err)
	assert.Equal(t, []string{"version", "id"}, names)

	names, err = NewSetPath("/static").Placeholders()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = NewSetPath("/items/{id").Placeholders()
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := BuildConfig{Logger: newTestLogger(), MaxBodyBytes: 1024}

	f, err := Build(Spec{Type: TypeModifyResponseBody, Transform: "uppercase"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "modify_response_body(uppercase)", Describe(f))

	f, err = Build(Spec{Type: TypeModifyResponseBody}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "modify_response_body(identity)", Describe(f))

	_, err = Build(Spec{Type: "does_not_exist"}, cfg)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	invalid := []Spec{
		{},
		{Type: TypeAddRequestHeader},
		{Type: TypeLogRequestHeader},
		{Type: TypeStripPrefix},
		{Type: TypeSetPath, Template: "users/{id}"},
		{Type: TypeSetPath, Template: "/users/{id"},
		{Type: TypeModifyResponseBody, Transform: "reverse"},
	}
	for _, s := range invalid {
		assert.Error(t, Validate(s), "spec %+v", s)
	}

	valid := []Spec{
		{Type: TypeAddRequestHeader, Name: "Message", Value: "Hello World"},
		{Type: TypeAddResponseHeader, Name: "HEADER", Value: "HEADER_VALUE"},
		{Type: TypeStripPrefix, Parts: 1},
		{Type: TypeSetPath, Template: "/users/{id}"},
		{Type: TypeModifyResponseBody, Transform: "uppercase"},
	}
	for _, s := range valid {
		assert.NoError(t, Validate(s), "spec %+v", s)
	}
}

func TestBuildChain_ReportsIndex(t *testing.T) {
	_, err := BuildChain([]Spec{
		{Type: TypeAddRequestHeader, Name: "A", Value: "1"},
		{Type: "bogus"},
	}, BuildConfig{Logger: newTestLogger()})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "filter 1:"))
}

func TestTransformNames(t *testing.T) {
	assert.Equal(t, []string{"identity", "lowercase", "uppercase"}, TransformNames())

	_, err := LookupTransform("reverse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: identity, lowercase, uppercase")
}
