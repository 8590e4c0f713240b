package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tkingovr/routegate/api"
	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/route"
)

var (
	checkPath    string
	checkMethod  string
	checkHeaders []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run route matching without a running gateway",
	Long: `Check which route a request would match and which upstream URL it would
be forwarded to. No upstream is contacted. Exits non-zero when no route
matches.`,
	Example: `  routegate check -c configs/routes.yaml --path /users/42
  routegate check -c configs/routes.yaml --path /hello --method POST -H 'X-Tenant: acme'`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPath, "path", "", "request path, optionally with a query string")
	checkCmd.Flags().StringVar(&checkMethod, "method", "GET", "HTTP method")
	checkCmd.Flags().StringArrayVarP(&checkHeaders, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	_ = checkCmd.MarkFlagRequired("path")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if !strings.HasPrefix(checkPath, "/") {
		return fmt.Errorf("--path must start with /")
	}
	headers, err := parseHeaders(checkHeaders)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	table, err := route.NewTable(ctx, cfg.Routes, filter.BuildConfig{
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("building route table: %w", err)
	}

	result := table.Check(ctx, api.MatchRequest{
		Method:  strings.ToUpper(checkMethod),
		Path:    checkPath,
		Headers: headers,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Matched {
		return fmt.Errorf("no route matched %s %s", strings.ToUpper(checkMethod), checkPath)
	}
	return nil
}

func parseHeaders(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		out[name] = append(out[name], strings.TrimSpace(value))
	}
	return out, nil
}
