package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkingovr/routegate/internal/config"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "routegate",
	Short: "routegate is a small path-based HTTP API gateway",
	Long: `routegate matches inbound HTTP requests against an ordered route table,
rewrites their path, runs per-route request and response filters and
forwards them to the route's upstream.

Without --config the built-in demo routes are used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		return config.LoadDotEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "route file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.DefaultConfig()
	}
	return config.Load(cfgFile)
}
