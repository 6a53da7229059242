package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wispberry-tech/medhelp-web/config"
	"github.com/wispberry-tech/medhelp-web/guard"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listenAddr, staticDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web frontend behind the route guard",
		Long: `Serve the built web frontend. Protected pages redirect visitors without a
refresh cookie to the login page; signed-in visitors are sent from the auth
pages to the dashboard.

Examples:
  medhelp serve
  medhelp serve --listen :8000 --static ./web/out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listenAddr != "" {
				a.cfg.ListenAddr = listenAddr
			}
			if staticDir != "" {
				a.cfg.StaticDir = staticDir
			}
			return runServe(cmd.Context(), a.cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides listen_addr)")
	cmd.Flags().StringVar(&staticDir, "static", "", "directory of the built frontend (overrides static_dir)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if info, err := os.Stat(cfg.StaticDir); err != nil || !info.IsDir() {
		return fmt.Errorf("static directory %q is not readable", cfg.StaticDir)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := newRouter(cfg, registry)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", cfg.ListenAddr, "static_dir", cfg.StaticDir, "api_url", cfg.APIURL)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// newRouter builds the HTTP handler of the serve command. Guard decisions
// are counted on registry.
func newRouter(cfg *config.Config, registry *prometheus.Registry) (http.Handler, error) {
	g, err := guard.New(guard.DefaultConfig(), guard.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create route guard: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(g.Middleware)
		r.Handle("/*", staticHandler(cfg.StaticDir))
	})

	return r, nil
}

// staticHandler serves an exported frontend, where /dashboard is stored as
// dashboard.html next to a dashboard/ directory of nested pages.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if p != "/" && path.Ext(p) == "" && isFile(dir, p+".html") {
			r2 := r.Clone(r.Context())
			r2.URL.Path = p + ".html"
			files.ServeHTTP(w, r2)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func isFile(dir, p string) bool {
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(p, "/"))))
	return err == nil && info.Mode().IsRegular()
}
