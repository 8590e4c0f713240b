package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/route"
)

var routesJSON bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes of a route file in match order",
	Example: `  routegate routes -c configs/routes.yaml
  routegate routes -c configs/routes.yaml --json`,
	Args: cobra.NoArgs,
	RunE: runRoutes,
}

func init() {
	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table, err := route.NewTable(context.Background(), cfg.Routes, filter.BuildConfig{
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("building route table: %w", err)
	}

	out := cmd.OutOrStdout()
	if routesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(table.Info())
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tURI\tREWRITE\tFILTERS")
	for _, r := range table.Info() {
		path := r.Path
		if len(r.Methods) > 0 {
			path = strings.Join(r.Methods, ",") + " " + path
		}
		if r.RegoGuard {
			path += " (guarded)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, path, r.URI, dash(r.Rewrite), dash(strings.Join(r.Filters, ", ")))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
