package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkingovr/routegate/api"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		cfgFile, routesJSON = "", false
		checkPath, checkMethod, checkHeaders = "", "GET", nil
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check", "-c", "../../../configs/routes.yaml", "--path", "/users/42")
	require.NoError(t, err)

	var resp api.MatchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "getUserById", resp.Route)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/users/42", resp.Upstream)
}

func TestCheckCommand_NoMatch(t *testing.T) {
	out, err := run(t, "check", "--path", "/missing")
	assert.Error(t, err)
	assert.Contains(t, out, `"matched": false`)
}

func TestCheckCommand_InvalidHeader(t *testing.T) {
	_, err := run(t, "check", "--path", "/hello", "-H", "no-colon")
	assert.Error(t, err)
}

func TestRoutesCommand(t *testing.T) {
	out, err := run(t, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "getRoute")
	assert.Contains(t, out, "/users/(?<segment>.*) -> /users/${segment}")
}

func TestRoutesCommand_JSON(t *testing.T) {
	out, err := run(t, "routes", "--json")
	require.NoError(t, err)

	var routes []api.RouteInfo
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	assert.Len(t, routes, 3)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "routegate dev\n", out)
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"X-Tenant: acme", "X-Tenant:beta", "Accept: */*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "beta"}, h["X-Tenant"])
	assert.Equal(t, []string{"*/*"}, h["Accept"])
}
