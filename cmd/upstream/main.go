// Command upstream is a demo backend for the /hello route of the shipped
// route file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var listen string

func main() {
	cmd := &cobra.Command{
		Use:   "upstream",
		Short: "Demo upstream for the routegate /hello route",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	cmd.Flags().StringVar(&listen, "listen", ":8081", "listen address")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              listen,
		Handler:           newHandler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("demo upstream listening", "listen", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hello", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("hello requested",
			"message", r.Header.Get("Message"),
			"request_id", r.Header.Get("X-Request-Id"),
		)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "hello from upstream, message=%q\n", r.Header.Get("Message"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"path":      r.URL.Path,
			"method":    r.Method,
			"body_size": n,
		})
	})
	return mux
}
