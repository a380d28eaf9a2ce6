package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kurid3v/AVinci/internal/config"
	"github.com/kurid3v/AVinci/internal/handler"
	"github.com/kurid3v/AVinci/internal/middleware"
	"github.com/kurid3v/AVinci/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ProblemHandler    *handler.ProblemHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
	HealthProbes      map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler(nil))

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	aiLimit := middleware.RateLimit("ai", cfg.AIRateLimitPerMin, time.Minute)

	if deps.ProblemHandler != nil {
		deps.ProblemHandler.Register(api.Group("/problems", jwtMiddleware), aiLimit)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions", jwtMiddleware))
	}

	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(api.Group("/ai", jwtMiddleware, aiLimit))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activity", jwtMiddleware, middleware.RequireRole("teacher", "admin")))
	}
}
