package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"

	"github.com/s1natex/todo-api-GO/internal/config"
	"github.com/s1natex/todo-api-GO/internal/database"
	"github.com/s1natex/todo-api-GO/internal/middleware"
	"github.com/s1natex/todo-api-GO/internal/telemetry"
	"github.com/s1natex/todo-api-GO/internal/todo"
)

const ensureCreatedTimeout = 30 * time.Second

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// logger level is not known yet
		slog.Error("config_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger) // for third-party packages that use slog

	dsn, err := database.NormalizeConnectionString(cfg.ConnectionString)
	if err != nil {
		logger.Error("connection_string_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logConnectionTarget(logger, cfg.ConnectionString)

	db, err := database.Open(dsn, database.Options{
		QueryLog:        cfg.DB.QueryLog,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("database_open_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.TracesExporter, cfg.ServiceName, os.Stdout)
	if err != nil {
		logger.Error("tracing_setup_error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := todo.NewStore(db)
	ensureCreated(ctx, store, logger)

	metrics := middleware.NewMetrics(collectors.NewDBStatsCollector(db.DB, "todo"))
	r := newRouter(cfg, db, store, metrics, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("server_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server_shutdown_error", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracing_shutdown_error", slog.String("error", err.Error()))
		}
	}
}

// ensureCreated provisions the schema but never stops startup: the database
// may come up after this process starts listening.
func ensureCreated(ctx context.Context, store *todo.Store, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, ensureCreatedTimeout)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Warn("database_ensure_created_failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("database_ensure_created_ok")
}

func logConnectionTarget(logger *slog.Logger, raw string) {
	switch {
	case database.IsPostgresURI(raw):
		t, err := database.ParsePostgresURI(raw)
		if err != nil {
			return
		}
		logger.Info("database_target",
			slog.String("format", "uri"),
			slog.String("host", t.Host),
			slog.Int("port", t.Port),
			slog.String("database", t.Database),
		)
	case database.IsSQLiteDSN(raw):
		logger.Info("database_target", slog.String("format", "sqlite"))
	default:
		logger.Info("database_target", slog.String("format", "keyword"))
	}
}

// newRouter wires the root, health, metrics and todo routes with the middleware stack
func newRouter(cfg config.Config, db *bun.DB, repo todo.Repository, metrics *middleware.Metrics, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, errors, etc.)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	// Logger sits outside Recoverer so recovered panics are logged as 500s.
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	// Public API: any origin, method and header.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Location", "X-Request-ID", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.TracingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))

	// ---- Routes ----

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("API is running!"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hs := database.Health(r.Context(), db)
		status, code := "Healthy", http.StatusOK
		if !hs.Healthy {
			status, code = "Unhealthy", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "database": hs})
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	todo.RegisterRoutes(r, repo, logger)

	return r
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: l,
	})
	return slog.New(handler)
}
