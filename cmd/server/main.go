package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/roshanrateria/EcoRoute/internal/config"
	"github.com/roshanrateria/EcoRoute/internal/events"
	httpapi "github.com/roshanrateria/EcoRoute/internal/http"
	"github.com/roshanrateria/EcoRoute/internal/leaderboard"
	"github.com/roshanrateria/EcoRoute/internal/locks"
	"github.com/roshanrateria/EcoRoute/internal/logging"
	"github.com/roshanrateria/EcoRoute/internal/notify"
	"github.com/roshanrateria/EcoRoute/internal/orders"
	"github.com/roshanrateria/EcoRoute/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_orders.sql")); err == nil {
				if _, err := ps.DB().Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_orders.sql")
				}
			} else {
				logger.Warn("migration file unreadable", "error", err)
			}
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var (
		locker locks.Locker
		board  *leaderboard.Board
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		locker = locks.NewRedisLocker(rc, cfg.BatchLockTTL)
		board = leaderboard.New(rc, cfg.LeaderboardKey)
	} else {
		locker = locks.NewKeyedMutex()
	}

	svc := orders.NewService(store, locker)
	svc.Log = logger

	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		svc.Events = producer
	}

	wsreg := notify.NewWSRegistry(logger)
	notifiers := notify.Fanout{wsreg}
	if cfg.DispatchWebhook != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.DispatchWebhook, logger))
	}
	svc.Notify = notifiers

	api := httpapi.NewServer(svc, board, wsreg, logger, cfg.JWTSecret)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ecoroute api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped cleanly")
}
