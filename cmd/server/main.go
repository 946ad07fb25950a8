package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fnf/trading-core/internal/api"
	"github.com/fnf/trading-core/internal/config"
	"github.com/fnf/trading-core/internal/feed"
	"github.com/fnf/trading-core/internal/ledger"
	"github.com/fnf/trading-core/internal/metrics"
	"github.com/fnf/trading-core/internal/query"
	"github.com/fnf/trading-core/internal/risk"
	"github.com/fnf/trading-core/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	health := &api.HealthHandler{}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		health.DBPing = pool.Ping
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			health.RedisPing = func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Exposure limits ---
	limiter := risk.NewLimiter(cfg.MaxPerSymbol, cfg.MaxCorrelated, cfg.PrefixLen)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Core components ---
	priceFeed := feed.New(wsHub.BroadcastPrice)
	lgr := ledger.New(st, limiter)
	querySvc := query.NewService(lgr, priceFeed)
	apiSvc := api.NewService(lgr, querySvc, priceFeed, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trading-core"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health checks (aggregate plus per-service).
		r.Get("/health", health.Health)
		r.Get("/health/db", health.HealthDB)
		r.Get("/health/redis", health.HealthRedis)

		// WebSocket endpoint for real-time price and position updates.
		r.Get("/ws", wsHub.HandleWS)

		// Position lifecycle.
		r.Get("/positions", apiSvc.ListPositions)
		r.Post("/positions", apiSvc.OpenPosition)
		r.Get("/positions/{positionID}", apiSvc.GetPosition)
		r.Post("/positions/{positionID}/adjust", apiSvc.AdjustPosition)
		r.Post("/positions/{positionID}/close", apiSvc.ClosePosition)
		r.Get("/positions/{positionID}/history", apiSvc.GetPositionHistory)

		// Market data.
		r.Get("/market-data/{symbol}", apiSvc.GetMarketData)
		r.Post("/market-data", apiSvc.UpdateMarketData)
		r.Get("/symbols", apiSvc.ListSymbols)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trading-core listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trading-core...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trading-core stopped")
}
