// Command mcpguard is the main entry point for the MCP security-enforcement
// guard engine. It loads route/guard configuration, watches the config file
// for changes, builds the per-route guard chains that payloads are
// dispatched through, and serves the schema/admin/health HTTP surface
// described in spec.md §6.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/mcpguard/internal/config"
	"github.com/MrWong99/mcpguard/internal/engine"
	"github.com/MrWong99/mcpguard/internal/guards"
	"github.com/MrWong99/mcpguard/internal/guards/wasmguard"
	"github.com/MrWong99/mcpguard/internal/guardschema"
	"github.com/MrWong99/mcpguard/internal/health"
	"github.com/MrWong99/mcpguard/internal/httpapi"
	"github.com/MrWong99/mcpguard/internal/observe"
)

// version is set via -ldflags at build time; "dev" covers local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mcpguard: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mcpguard: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mcpguard starting",
		"config", *configPath,
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"routes", len(cfg.Routes),
	)

	// ── Observability providers ──────────────────────────────────────────
	shutdownProviders, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Guard registry, engine, schema registry ──────────────────────────
	registry := guards.NewDefaultRegistry()
	wasmLoader := wasmguard.NewLoader(metrics)
	wasmguard.Register(registry, wasmLoader)

	schemas, err := guardschema.NewBuiltinRegistry()
	if err != nil {
		slog.Error("failed to build schema registry", "err", err)
		return 1
	}

	eng := engine.New(registry, metrics)
	applyRoutes(eng, cfg.Routes)

	// ── Config hot-reload ─────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		diff := config.Diff(old, updated)
		if diff.LogLevelChanged {
			slog.Info("log level changed on reload", "new_level", diff.NewLogLevel)
		}
		applyRoutes(eng, updated.Routes)
		slog.Info("configuration reloaded", "routes_changed", diff.RoutesChanged, "changed_routes", len(diff.RouteChanges))
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	// ── HTTP surface ──────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewSchemaHandler(schemas).Register(mux)
	httpapi.NewAdminHandler(eng, watcher).Register(mux)
	health.New(
		health.Checker{Name: "config_watcher", Check: func(context.Context) error {
			if watcher.Current() == nil {
				return fmt.Errorf("no configuration loaded")
			}
			return nil
		}},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := observe.Middleware(metrics)(mux)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	var adminSrv *http.Server
	if cfg.Server.AdminAddr != "" && cfg.Server.AdminAddr != addr {
		adminSrv = &http.Server{Addr: cfg.Server.AdminAddr, Handler: handler}
	}

	// ── Run and wait for shutdown signal ─────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go serve(srv, "listen_addr", errCh)
	if adminSrv != nil {
		go serve(adminSrv, "admin_addr", errCh)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var shutdownErrs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, err)
		}
	}
	watcher.Stop()
	if err := wasmLoader.Close(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, err)
	}
	if err := shutdownProviders(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, err)
	}

	if err := errors.Join(shutdownErrs...); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serve runs srv.ListenAndServe, logging the listen address and forwarding
// any error other than the expected "server closed" to errCh.
func serve(srv *http.Server, label string, errCh chan<- error) {
	slog.Info("listening", label, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s %s: %w", label, srv.Addr, err)
	}
}

// applyRoutes reloads every route in routes against eng, logging and
// skipping (rather than aborting the whole batch) any route whose chain
// fails to build — matching engine's per-route blast-radius containment
// (a bad reload for one route never tears down another route's working
// chain).
func applyRoutes(eng *engine.Engine, routes []config.RouteConfig) {
	for _, rc := range routes {
		if err := eng.Reload(rc.Name, rc.SecurityGuards, rc.MaxRouteMemoryBytes); err != nil {
			slog.Error("failed to reload route", "route", rc.Name, "err", err)
			continue
		}
		slog.Info("route loaded", "route", rc.Name, "guards", len(rc.SecurityGuards))
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
