package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"attendease/internal/attendance"
	"attendease/internal/config"
	"attendease/internal/logger"
	"attendease/internal/queue"
	"attendease/internal/store"
)

// Worker consumes queued attendance writes and persists them.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
	}

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	repo := attendance.NewRepository(db)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Str("queue", cfg.QueueKey).Msg("worker started, waiting for messages")
	for msg := range messages {
		process(ctx, repo, q, msg)
	}

	log.Info().Msg("worker stopped")
}

func process(ctx context.Context, repo *attendance.Repository, q queue.Queue, msg queue.Message) {
	log := logger.Get()
	rec, err := attendance.DecodeRecord(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("undecodable message, dead-lettering")
		_ = q.DeadLetter(ctx, msg)
		return
	}

	// finish the write even when shutdown starts mid-message
	if err := repo.Write(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("attendance write failed, dead-lettering")
		_ = q.DeadLetter(context.WithoutCancel(ctx), msg)
		return
	}
	log.Info().Str("record_id", rec.ID).Str("course_id", rec.CourseID).Msg("attendance record persisted")
}
