package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkingovr/routegate/internal/access"
	"github.com/tkingovr/routegate/internal/admin"
	"github.com/tkingovr/routegate/internal/filter"
	"github.com/tkingovr/routegate/internal/forward"
	"github.com/tkingovr/routegate/internal/metrics"
	httpproxy "github.com/tkingovr/routegate/internal/proxy/http"
	"github.com/tkingovr/routegate/internal/route"
)

var (
	serveListen    string
	serveAdminAddr string
	serveNoAdmin   bool
	serveWatch     bool
	serveInterval  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway and the admin server",
	Long: `Start the gateway listener and, unless --no-admin is given, the admin
server with the routes page, access log, JSON API and /metrics.

With --watch the route file is polled and a valid new version replaces the
route table without dropping in-flight requests. Listener settings are
only read at startup.`,
	Example: `  routegate serve -c configs/routes.yaml
  routegate serve -c configs/routes.yaml --watch --listen :8000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gateway listen address (overrides settings.listen)")
	serveCmd.Flags().StringVar(&serveAdminAddr, "admin-addr", "", "admin listen address (overrides settings.admin_addr)")
	serveCmd.Flags().BoolVar(&serveNoAdmin, "no-admin", false, "do not start the admin server")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the route file when it changes")
	serveCmd.Flags().DurationVar(&serveInterval, "watch-interval", 2*time.Second, "route file poll interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveAdminAddr != "" {
		cfg.AdminAddr = serveAdminAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	store, err := access.NewJSONLStore(cfg.AccessLogDir)
	if err != nil {
		return fmt.Errorf("creating access store: %w", err)
	}
	defer store.Close()

	buildCfg := filter.BuildConfig{
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	table, err := route.NewTable(ctx, cfg.Routes, buildCfg)
	if err != nil {
		return fmt.Errorf("building route table: %w", err)
	}

	fwd := forward.New(logger, forward.WithTimeout(cfg.UpstreamTimeout))
	gateway := httpproxy.NewGateway(table, fwd, logger,
		httpproxy.WithAccessStore(store),
		httpproxy.WithMetrics(m),
	)

	if !serveNoAdmin {
		adm := admin.NewServer(cfg.AdminAddr, store, gateway, m, logger)
		go func() {
			if err := adm.ListenAndServe(ctx); err != nil {
				logger.Error("admin server error", "error", err)
			}
		}()
	}

	if serveWatch {
		if cfg.RoutesPath == "" {
			return fmt.Errorf("--watch requires --config")
		}
		go newRouteWatcher(ctx, cfg.RoutesPath, serveInterval, gateway, m, buildCfg).Run(ctx)
	}

	logger.Info("starting serve mode",
		"listen", cfg.Listen,
		"admin", adminAddrForLog(cfg.AdminAddr),
		"upstream_timeout", cfg.UpstreamTimeout,
		"access_log_dir", cfg.AccessLogDir,
		"watch", serveWatch,
	)

	return gateway.ListenAndServe(ctx, cfg.Listen)
}

// newRouteWatcher swaps the gateway's route table whenever the route file
// changes and counts every reload attempt.
func newRouteWatcher(ctx context.Context, path string, interval time.Duration, gateway *httpproxy.Gateway, m *metrics.Metrics, buildCfg filter.BuildConfig) *route.Watcher {
	return route.NewWatcher(path, interval, buildCfg.Logger, func(rf *route.RouteFile) error {
		next, err := route.NewTable(ctx, rf, buildCfg)
		if err != nil {
			return err
		}
		gateway.SetTable(next)
		m.Reloaded(true)
		return nil
	}, route.OnReloadError(func(error) {
		m.Reloaded(false)
	}))
}

func adminAddrForLog(addr string) string {
	if serveNoAdmin {
		return "disabled"
	}
	return addr
}
