package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/config"
	"github.com/iliyamo/warehouse-auth/internal/database"
	"github.com/iliyamo/warehouse-auth/internal/handler"
	"github.com/iliyamo/warehouse-auth/internal/logs"
	"github.com/iliyamo/warehouse-auth/internal/metrics"
	"github.com/iliyamo/warehouse-auth/internal/middleware"
	"github.com/iliyamo/warehouse-auth/internal/queue"
	"github.com/iliyamo/warehouse-auth/internal/repository"
	"github.com/iliyamo/warehouse-auth/internal/router"
	"github.com/iliyamo/warehouse-auth/internal/service"
	"github.com/iliyamo/warehouse-auth/internal/token"
	"github.com/iliyamo/warehouse-auth/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logs.New(logs.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Check{}

	var store service.CredentialStore
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory user store; data is lost on restart")
		store = repository.NewMemoryUserRepo()
	default:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.WithError(err).Fatal("connect mysql")
		}
		defer closeDB(db, log)
		checks["mysql"] = db.PingContext
		store = repository.NewUserRepo(db)
	}

	var dispatcher service.OTPDispatcher = queue.LogDispatcher{Log: log}
	if cfg.RabbitURL != "" {
		dispatcher = queue.NewPublisher(cfg.RabbitURL, cfg.OTPQueue, log)
	} else {
		log.Warn("RABBITMQ_URL not set; OTP codes are not delivered")
	}

	rlCfg := config.LoadRateLimitConfig()
	var rdb *redis.Client
	if rlCfg.Enabled {
		rdb, err = config.NewRedisClient(ctx)
		if err != nil {
			log.WithError(err).Warn("redis unavailable; rate limiting disabled")
		} else {
			defer rdb.Close()
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("register metrics")
	}

	tokens := token.NewService(token.Config{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		TempSecret:    cfg.TempSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		TempTTL:       cfg.TempTTL(),
		Issuer:        cfg.Issuer,
	})
	svc, err := service.NewAuthService(store, utils.NewBcryptHasher(cfg.BcryptCost), tokens, dispatcher, log, service.Options{
		OTPExpiry: cfg.OTPExpiry(),
		OTPDigits: cfg.OTPDigits,
		Metrics:   m,
	})
	if err != nil {
		log.WithError(err).Fatal("build auth service")
	}

	e := router.New(router.Deps{
		Auth: handler.NewAuthHandler(svc, log, handler.CookieConfig{
			Name:   cfg.CookieName,
			Secure: cfg.Env == "prod",
		}),
		Users: handler.NewUserHandler(svc, log),
		Authenticate: middleware.Authenticate(middleware.AuthConfig{
			Verifier:   svc,
			Log:        log,
			CookieName: cfg.CookieName,
		}),
		RateLimit: middleware.RateLimit(rlCfg, rdb, log),
		Metrics:   metrics.Handler(prometheus.DefaultGatherer),
		Health:    checks,
		Log:       log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.Store}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("stopped")
}

func closeDB(db *sql.DB, log logrus.FieldLogger) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("close mysql")
	}
}
