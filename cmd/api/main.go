package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"attendease/internal/api"
	"attendease/internal/attendance"
	"attendease/internal/config"
	"attendease/internal/logger"
	"attendease/internal/queue"
	"attendease/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	log := logger.Get()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(context.Background()); err != nil {
		return err
	}

	checks := map[string]api.HealthCheck{"db": db.Healthy}

	var redisClient *store.Redis
	if (cfg.WriteMode == config.WriteQueue && cfg.QueueBackend != "memory") || cfg.DedupDaily {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
	}

	repo := attendance.NewRepository(db)
	writer := newWriter(cfg, repo, redisClient)

	ts, err := attendance.NewTimestamper(cfg.Locale, cfg.Location())
	if err != nil {
		return err
	}
	pipeline := attendance.NewPipeline(repo, repo, writer, attendance.Options{
		LookupTimeout: cfg.LookupTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		SyncWrite:     cfg.WriteMode == config.WriteSync,
		Timestamper:   ts,
	})
	controller := attendance.NewController(pipeline, cfg.ScanTimeout, nil)
	handler := api.NewHandler(cfg, controller, attendance.NewService(repo, cfg.Location()), checks)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("write_mode", cfg.WriteMode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	controller.CancelAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced shutdown")
	}
	// flush fire-and-forget writes
	pipeline.Wait()

	log.Info().Msg("server exited")
	return nil
}

// newWriter picks where validated records go for the configured write mode.
func newWriter(cfg config.App, repo *attendance.Repository, redisClient *store.Redis) attendance.Writer {
	var w attendance.Writer = repo
	if cfg.WriteMode == config.WriteQueue {
		var q queue.Queue
		if cfg.QueueBackend == "memory" {
			// no separate worker for the memory backend
			mem := queue.NewInMemory(256)
			go drain(mem, repo)
			q = mem
		} else {
			q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		}
		w = attendance.NewQueueWriter(q)
	}
	if cfg.DedupDaily {
		w = attendance.NewDailyDedup(w, redisClient, cfg.Location())
	}
	return w
}

// drain persists records published to an in-memory queue.
func drain(q queue.Queue, repo *attendance.Repository) {
	log := logger.Get()
	msgs, err := q.Consume(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("in-memory queue consume failed")
		return
	}
	for msg := range msgs {
		rec, err := attendance.DecodeRecord(msg)
		if err == nil {
			err = repo.Write(context.Background(), rec)
		}
		if err != nil {
			log.Error().Err(err).Str("type", msg.Type).Msg("in-memory write failed")
			_ = q.DeadLetter(context.Background(), msg)
		}
	}
}
