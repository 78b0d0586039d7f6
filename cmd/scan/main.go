// Command scan runs a kiosk session: the student selects a course, taps the
// professor's card on a serial NFC reader and gets the result printed.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"attendease/internal/attendance"
	"attendease/internal/config"
	"attendease/internal/logger"
	"attendease/internal/nfc"
	"attendease/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	course := flag.String("course", "", "selected course id")
	email := flag.String("email", "", "student email")
	device := flag.String("device", cfg.SerialDevice, "serial device of the NFC reader")
	baud := flag.Int("baud", cfg.SerialBaud, "serial baud rate")
	payload := flag.String("payload", "", "hex record payload to use instead of a reader")
	loop := flag.Bool("loop", false, "keep scanning until interrupted (reader only)")
	flag.Parse()

	if *course == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "usage: scan -course <id> -email <student email> [-device /dev/ttyUSB0 | -payload <hex>] [-loop]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	repo := attendance.NewRepository(db)
	var writer attendance.Writer = repo
	if cfg.DedupDaily {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		writer = attendance.NewDailyDedup(repo, redisClient, cfg.Location())
	}
	ts, err := attendance.NewTimestamper(cfg.Locale, cfg.Location())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid locale")
	}
	pipeline := attendance.NewPipeline(repo, repo, writer, attendance.Options{
		LookupTimeout: cfg.LookupTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		SyncWrite:     cfg.WriteMode == config.WriteSync,
		Timestamper:   ts,
	})
	defer pipeline.Wait()
	controller := attendance.NewController(pipeline, cfg.ScanTimeout, nil)
	sel := attendance.Selection{CourseID: *course, UserIdentity: *email}

	if *payload != "" {
		raw, err := hex.DecodeString(*payload)
		if err != nil {
			log.Fatal().Err(err).Msg("payload must be hex")
		}
		report(controller.Scan(ctx, sel, nfc.NewPayloadReader(raw)))
		return
	}

	for {
		reader, err := openReader(*device, *baud)
		if err != nil {
			log.Error().Err(err).Msg("reader unavailable")
		}
		fmt.Println("Hold your device near the professor's course card")
		res := controller.Scan(ctx, sel, reader)
		report(res)
		if !*loop || ctx.Err() != nil || err != nil {
			return
		}
	}
}

func openReader(device string, baud int) (nfc.Reader, error) {
	if device == "" {
		return nil, nfc.ErrUnavailable
	}
	s, err := nfc.NewSerial(device, baud)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func report(res attendance.Result) {
	if res.Err != nil {
		fmt.Fprintln(os.Stderr, res.Message)
		return
	}
	fmt.Println(res.Message)
}
