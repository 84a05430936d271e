package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-workshop-api/internal/config"
	"github.com/noah-isme/gema-workshop-api/internal/handler"
	"github.com/noah-isme/gema-workshop-api/internal/middleware"
	"github.com/noah-isme/gema-workshop-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	WorkshopHandler   *handler.WorkshopHandler
	SubmissionHandler *handler.SubmissionHandler
	AssessmentHandler *handler.AssessmentHandler
	AllocationHandler *handler.AllocationHandler
	EvaluationHandler *handler.EvaluationHandler
	ActivityHandler   *handler.ActivityHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
	// ExposeMetrics mounts the Prometheus scrape endpoint at /metrics.
	ExposeMetrics bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.ExposeMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	secured := api.Group("", jwtMiddleware)
	workshops := secured.Group("/workshops")

	if deps.WorkshopHandler != nil {
		deps.WorkshopHandler.Register(workshops)
	}
	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(workshops)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(workshops, middleware.RequireRole("teacher", "manager", "admin"))
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(secured)
	}
	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(secured)
	}
	if deps.AllocationHandler != nil {
		deps.AllocationHandler.Register(secured)
	}
}
