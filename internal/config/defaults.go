package config

import "time"

const (
	DefaultListen          = ":8080"
	DefaultAdminAddr       = "127.0.0.1:9090"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 10 << 20
)

// DefaultAccessLogDir returns the default access log directory path.
func DefaultAccessLogDir() string {
	return "~/.routegate/logs"
}
