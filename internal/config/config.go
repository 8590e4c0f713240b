// Package config turns a route file, environment overrides and defaults
// into the runtime configuration of the gateway.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tkingovr/routegate/internal/route"
)

//go:embed default_routes.yaml
var defaultRoutes []byte

// Config is the runtime configuration for routegate.
type Config struct {
	Routes          *route.RouteFile
	RoutesPath      string
	Listen          string
	AdminAddr       string
	UpstreamTimeout time.Duration
	AccessLogDir    string
	MaxBodyBytes    int64
}

// overrides are read from the environment and win over the route file.
type overrides struct {
	Listen          string        `env:"ROUTEGATE_LISTEN"`
	AdminAddr       string        `env:"ROUTEGATE_ADMIN_ADDR"`
	UpstreamTimeout time.Duration `env:"ROUTEGATE_UPSTREAM_TIMEOUT"`
	AccessLogDir    string        `env:"ROUTEGATE_ACCESS_LOG_DIR"`
}

// Load reads a route file and produces a runtime Config.
func Load(path string) (*Config, error) {
	rf, err := route.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromRoutes(rf, path)
}

// LoadBytes parses YAML data and produces a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	rf, err := route.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return fromRoutes(rf, "")
}

// DefaultConfig returns the configuration used when no route file is
// given: the demo routes shipped in configs/routes.yaml.
func DefaultConfig() (*Config, error) {
	return LoadBytes(defaultRoutes)
}

// LoadDotEnv loads KEY=VALUE pairs from files (".env" when none are
// given) into the environment. Missing files are ignored and variables
// that are already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func fromRoutes(rf *route.RouteFile, path string) (*Config, error) {
	s := rf.Settings
	cfg := &Config{
		Routes:       rf,
		RoutesPath:   path,
		Listen:       s.Listen,
		AdminAddr:    s.AdminAddr,
		AccessLogDir: s.AccessLogDir,
		MaxBodyBytes: s.MaxBodyBytes,
	}

	if s.UpstreamTimeout != "" {
		d, err := time.ParseDuration(s.UpstreamTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream_timeout %q: %w", s.UpstreamTimeout, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid upstream_timeout %q: must not be negative", s.UpstreamTimeout)
		}
		cfg.UpstreamTimeout = d
	}

	var ov overrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if ov.Listen != "" {
		cfg.Listen = ov.Listen
	}
	if ov.AdminAddr != "" {
		cfg.AdminAddr = ov.AdminAddr
	}
	if ov.UpstreamTimeout > 0 {
		cfg.UpstreamTimeout = ov.UpstreamTimeout
	}
	if ov.AccessLogDir != "" {
		cfg.AccessLogDir = ov.AccessLogDir
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = DefaultAdminAddr
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.AccessLogDir == "" {
		cfg.AccessLogDir = DefaultAccessLogDir()
	}
	cfg.AccessLogDir = expandHome(cfg.AccessLogDir)
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return cfg, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
