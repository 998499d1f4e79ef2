package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/joefazee/parimutuel/app"
	"github.com/joefazee/parimutuel/app/api"
	"github.com/joefazee/parimutuel/app/database"
	"github.com/joefazee/parimutuel/app/doc"
	"github.com/joefazee/parimutuel/app/settlement"
	"github.com/joefazee/parimutuel/internal/cache"
	"github.com/joefazee/parimutuel/internal/deps"
	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/joefazee/parimutuel/internal/router"
	"github.com/joefazee/parimutuel/internal/sanitizer"
	"github.com/joefazee/parimutuel/internal/security"
)

// @title Parimutuel Settlement API
// @version 1.0
// @description Two-outcome parimutuel markets: stake, resolve and claim.

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.NewZeroLogger(os.Stdout, logger.ParseLevel(cfg.LogLevel), logger.Fields{
		"service": "parimutuel",
		"env":     cfg.Env,
	})

	container, cleanup, err := buildContainer(cfg, log)
	if err != nil {
		log.Fatal(err, logger.Fields{"stage": "bootstrap"})
	}
	defer cleanup()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.CorsMiddleware())
	r.GET("/api/v1/healthz", api.HealthCheck(cfg.Env))
	doc.Init(r, cfg.Env, cfg.PublicURL)

	router.NewMounter(container, api.Authenticate(container.TokenMaker)).
		Mount(r, settlement.Mount(&cfg.Settlement))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting settlement api", logger.Fields{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, logger.Fields{"stage": "listen"})
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, logger.Fields{"stage": "shutdown"})
	}
	log.Info("settlement api stopped", nil)
}

// buildContainer wires the backends selected in cfg.
func buildContainer(cfg *app.Config, log logger.Logger) (*deps.Container, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close failed", logger.Fields{"error": err.Error()})
			}
		}
	}

	tokenMaker, err := security.NewPasetoMaker(cfg.Auth.SymmetricKey)
	if err != nil {
		return nil, cleanup, fmt.Errorf("cannot create token maker: %w", err)
	}

	var opts []deps.Option

	if cfg.Backends.Storage == app.StoragePostgres {
		if cfg.DB.AutoMigrate {
			if err := database.Migrate(cfg.DB.MigrationsPath, cfg.DB.URL()); err != nil {
				return nil, cleanup, err
			}
		}
		db, err := database.New(&cfg.DB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, sqlDB.Close)
		opts = append(opts, deps.WithDB(db))
	}

	if cfg.Backends.NeedsRedis() {
		rdb := cache.NewRedisClient(cfg.Redis.Options())
		closers = append(closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to reach redis: %w", err)
		}

		opts = append(opts, redisOptions(cfg, rdb, log)...)
	}

	return deps.NewContainer(tokenMaker, sanitizer.NewHTMLStripper(), log, opts...), cleanup, nil
}

func redisOptions(cfg *app.Config, rdb *redis.Client, log logger.Logger) []deps.Option {
	var opts []deps.Option
	if cfg.Backends.Cache == cache.RedisBackend {
		opts = append(opts, deps.WithRedis(rdb))
	}
	if cfg.Backends.Lock == lock.RedisBackend {
		opts = append(opts, deps.WithLocker(lock.NewRedisLocker(rdb, "", cfg.Redis.LockTTL, 0, log)))
	}
	if cfg.Backends.Publisher == app.PublisherRedis {
		opts = append(opts, deps.WithPublisher(events.Fanout{
			events.NewLogPublisher(log),
			events.NewRedisPublisher(rdb, "", ""),
		}))
	}
	return opts
}
