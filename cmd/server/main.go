package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockparty/game-engine/internal/account"
	"github.com/stockparty/game-engine/internal/card"
	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/gateway"
	"github.com/stockparty/game-engine/internal/ledger"
	"github.com/stockparty/game-engine/internal/market"
	"github.com/stockparty/game-engine/internal/match"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Account store ---
	var st account.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := account.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
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
			st = account.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory accounts (data will not persist)")
		st = account.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	accounts := account.NewService(st, cfg.InitialAsset)

	// --- Engine core ---
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	mkt := market.New(cfg, rng)
	led := ledger.New(cfg)
	cards := card.NewEngine(cfg, mkt, led, rng)

	// The hub needs the controller for inbound commands and the controller
	// needs the hub for outbound events; the relay breaks the cycle.
	relay := gateway.NewRelay()
	controller := match.NewController(cfg, mkt, cards, led, relay)
	hub := gateway.NewHub(accounts, controller)
	relay.Bind(hub)

	srvHTTP := gateway.NewServer(accounts, hub)

	controller.Start()
	defer controller.Stop()

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srvHTTP.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("game-engine listening", "addr", cfg.Addr)
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

	slog.Info("shutting down game-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("game-engine stopped")
}
