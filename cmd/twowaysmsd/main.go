package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"twoway-sms/internal/auth"
	"twoway-sms/internal/config"
	"twoway-sms/internal/credits"
	"twoway-sms/internal/db"
	"twoway-sms/internal/httpapi"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

func main() {
	cfgPath := flag.String("config", "/etc/twowaysmsd.yaml", "config file path")
	migrate := flag.Bool("migrate", false, "apply the database schema before serving")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	logger.Init("twowaysmsd", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	if *migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Msg("schema applied")
	}

	var (
		sessions auth.SessionStore
		events   realtime.Broker = realtime.Nop{}
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connect")
		}
		sessions = auth.NewRedisSessionStore(rdb, cfg.SessionTTL)
		events = realtime.NewRedis(rdb)
	} else {
		logger.Warn().Msg("redis_addr not set; sessions are in-process and realtime updates are disabled")
		sessions = auth.NewMemorySessionStore(cfg.SessionTTL)
	}

	st := store.NewPostgres(pool)
	ledger := credits.NewLedger(st)
	providers := provider.FromConfig(cfg, nil)
	svc := messaging.NewService(st, ledger, providers, events, cfg.PublicBaseURL)
	authSvc := auth.NewService(st, sessions, cfg.DefaultSMSCredits, cfg.DefaultVoiceCredits)

	if err := authSvc.EnsureAdmin(ctx, cfg.BootstrapAdmin); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap admin")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Config:    cfg,
		DB:        pool,
		Store:     st,
		Auth:      authSvc,
		Messaging: svc,
		Ledger:    ledger,
		Providers: providers,
		Events:    events,
	})

	// No write timeout: conversation event streams stay open.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("public_base_url", cfg.PublicBaseURL).Msg("twowaysmsd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}
