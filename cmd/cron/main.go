package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/bootstrap"
	"github.com/noah-isme/gema-workshop-api/internal/config"
	"github.com/noah-isme/gema-workshop-api/internal/database"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/pkg/eventbus"
)

// Runs the periodic workshop tasks once: due scheduled allocations, then the automatic
// switch to the assessment phase. Meant to be invoked by an external scheduler.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("process", "cron").Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	infra := bootstrap.Infra{DB: db, Redis: redisClient}
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-cron")
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()
		infra.Publisher = eventbus.New(conn, cfg.NATSSubject, logger)
	}

	services := bootstrap.Build(cfg, infra, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = middleware.ContextWithCorrelation(ctx, uuid.NewString())

	started := time.Now()
	report, err := services.Cron.Run(ctx, started)
	if err != nil {
		logger.Error().Err(err).Msg("cron run failed")
		stop()
		os.Exit(1)
	}

	event := logger.Info().
		Int("phase_switches", report.PhaseSwitches).
		Int("scheduled_errors", report.ScheduledErrors).
		Dur("elapsed", time.Since(started))
	for status, count := range report.ScheduledRuns {
		event = event.Int("scheduled_"+status.String(), count)
	}
	event.Msg("cron run finished")
}
