package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"hostaway_sync/internal/adapters/hostaway"
	server "hostaway_sync/internal/adapters/http_server"
	"hostaway_sync/internal/adapters/observability"
	redisad "hostaway_sync/internal/adapters/redis"
	"hostaway_sync/internal/app"
	"hostaway_sync/internal/shared"
	mysqlrepo "hostaway_sync/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlrepo.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; reads fall through to MySQL")
	}
	locker := redisad.NewLocker(cache.Client())

	client, err := hostaway.New(cfg.HostawayBase, cfg.HostawayAccountID, cfg.HostawaySecret, cfg.HostawayRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Hostaway client")
	}

	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	b := app.NewBookingService(client, repo, cfg.SyncLogKeep)
	s := app.NewSyncService(client, repo, cache, locker, app.SyncOptions{
		PageSize:        cfg.PageSize,
		Workers:         cfg.Workers,
		WindowDays:      cfg.WindowDays,
		LockTTL:         cfg.SyncLockTTL,
		LogKeep:         cfg.SyncLogKeep,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	// http
	srv := server.New(15 * time.Second)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, B: b, S: s, AdminToken: cfg.AdminToken})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
