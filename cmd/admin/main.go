package main

import (
	"context"
	"errors"
	"os"

	"attendease/internal/attendance"
	"attendease/internal/config"
	"attendease/internal/logger"
	"attendease/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	cli := commandLine{cfg: cfg, db: db, repo: attendance.NewRepository(db), out: os.Stdout}
	if err := cli.run(context.Background(), os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
