package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-workshop-api/internal/bootstrap"
	"github.com/noah-isme/gema-workshop-api/internal/config"
	"github.com/noah-isme/gema-workshop-api/internal/database"
	"github.com/noah-isme/gema-workshop-api/internal/handler"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/internal/router"
	cloud "github.com/noah-isme/gema-workshop-api/pkg/cloudinary"
	"github.com/noah-isme/gema-workshop-api/pkg/eventbus"
)

const (
	uploadLimit  = 20
	executeLimit = 10
	limitWindow  = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}
	defer sqlDB.Close()

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	probes := map[string]handler.HealthProbe{
		"database": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	infra := bootstrap.Infra{DB: db, Redis: redisClient}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()
		infra.Publisher = eventbus.New(conn, cfg.NATSSubject, logger)
		probes["nats"] = func(context.Context) error {
			if status := conn.Status(); status != nats.CONNECTED {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	} else {
		logger.Warn().Msg("nats url not set, domain events are kept in the activity log only")
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("attachments disabled")
	} else {
		infra.Files = uploader
	}

	services := bootstrap.Build(cfg, infra, logger)
	validate := services.Validate

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	router.Register(app, cfg, router.Dependencies{
		WorkshopHandler: handler.NewWorkshopHandler(services.Workshops, services.Phases, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(services.Submissions, validate, logger).
			WithUploadLimiter(middleware.RateLimit("submission_upload", uploadLimit, limitWindow)),
		AssessmentHandler: handler.NewAssessmentHandler(services.Assessments, logger),
		AllocationHandler: handler.NewAllocationHandler(services.Allocations, validate, logger).
			WithExecuteLimiter(middleware.RateLimit("allocation_execute", executeLimit, limitWindow)),
		EvaluationHandler: handler.NewEvaluationHandler(services.Evaluation, logger),
		ActivityHandler:   handler.NewActivityHandler(services.Activity, logger),
		HealthProbes:      probes,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		ExposeMetrics:     true,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
