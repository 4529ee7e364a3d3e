package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"share-gateway/pkg/bruteforce"
	"share-gateway/pkg/config"
	"share-gateway/pkg/http"
	"share-gateway/pkg/kv"
	"share-gateway/pkg/logging"
	"share-gateway/pkg/middleware"
	"share-gateway/pkg/proxycache"
	"share-gateway/pkg/ratelimit"
	"share-gateway/pkg/service"
	"share-gateway/pkg/storage"
	"share-gateway/pkg/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	logger := logging.NewLogger(logging.LogLevel(cfg.App.LogLevel))
	ctx := context.Background()

	// Schema migrations run on startup, before the pool opens.
	if err := storage.Migrate(cfg.Postgres.DSN()); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		log.Fatal("invalid postgres configuration:", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("failed to connect to postgres:", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	// Shared KV store backs the rate limiter, the lockout guard and the
	// upstream response cache.
	store := kv.NewRedisStore(redisClient)

	shareStorage := storage.NewPostgresShareLinkStorage(pool)

	policy := upstream.DefaultCachePolicy(cfg.Upstream.AvailabilityTTL)
	upstreamClient := upstream.NewClient(cfg.Upstream, proxycache.NewCache(store), policy, logger)

	limiter := ratelimit.NewLimiter(store, logger)
	guard := bruteforce.NewGuard(store, logger)

	shareService := service.NewShareService(
		shareStorage, upstreamClient, upstreamClient,
		limiter, guard, logger, service.ConfigFrom(cfg))

	auth := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})

	handler := http.NewHandler(shareService, upstreamClient, cfg.App.BaseURL, shareStorage, store)

	r := chi.NewRouter()
	http.SetupRoutes(r, handler, auth, limiter, http.RouteConfig{
		APIRequests: cfg.RateLimit.APIRequests,
		APIWindow:   cfg.RateLimit.APIWindow,
	})

	srv := &stdhttp.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(ctx, "starting share gateway", "port", cfg.App.Port, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Fatal("server error:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", "error", err)
	}
}
