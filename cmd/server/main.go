package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/parking-reservation/internal/config"
	"github.com/iliyamo/parking-reservation/internal/database"
	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/ledger"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/queue"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/router"
	"github.com/iliyamo/parking-reservation/internal/viewcache"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	cfg := config.Load()
	cacheCfg := config.LoadViewCacheConfig()
	rlCfg := config.LoadRateLimitConfig()
	qCfg := config.LoadQueueConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		e.Logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	store := repository.NewStore(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	if cfg.AdminUsername != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			e.Logger.Fatalf("seed admin: %v", err)
		}
		if created {
			e.Logger.Infof("admin account %q created", cfg.AdminUsername)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		e.Logger.Warn("redis unavailable; view cache disabled, rate limiting is per process")
	} else {
		defer rdb.Close()
	}
	cache := viewcache.New(cacheCfg, rdb, e.Logger)

	var (
		emitter    ledger.Emitter
		publisher  *queue.Publisher
		dispatcher *queue.Dispatcher
	)
	if qCfg.Enabled {
		publisher = queue.NewPublisher(qCfg, e.Logger)
		dispatcher = queue.NewDispatcher(publisher, qCfg.Buffer, qCfg.PublishTimeout, e.Logger)
		emitter = dispatcher
		if qCfg.ConsumerEnabled {
			consumer := queue.NewConsumer(qCfg, users, e.Logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					e.Logger.Errorf("notification consumer stopped: %v", err)
				}
			}()
		}
	}

	l := ledger.New(store, cache, emitter, e.Logger)

	limit := middleware.NewTokenBucket(rlCfg, rdb)
	router.RegisterRoutes(e, handler.NewHealthHandler(db, rdb))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limit)
	router.RegisterParking(e, handler.NewParkingHandler(l, cache, cacheCfg.TTL), cfg.JWTSecret, limit)
	router.RegisterAdmin(e, handler.NewAdminHandler(l, cache, cacheCfg.TTL), cfg.JWTSecret, limit)

	addr := ":" + cfg.Port
	e.Logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			e.Logger.Warnf("event dispatcher: %v", err)
		}
		_ = publisher.Close()
	}
}
