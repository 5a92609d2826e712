package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/llmcompare/internal/config"
	"github.com/noah-isme/llmcompare/internal/handler"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PageHandler       *handler.PageHandler
	URLHandler        *handler.URLHandler
	SubmissionHandler *handler.SubmissionHandler
	AnswerHandler     *handler.AnswerHandler
	// SessionStore names the store kind reported by the health endpoint.
	SessionStore string
	// SubmissionLimiter overrides the per-client limiter on submission routes.
	SubmissionLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.PageHandler != nil {
		app.Get("/", deps.PageHandler.Index)
	}
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.SessionStore))

	if deps.URLHandler != nil {
		deps.URLHandler.Register(api.Group("/urls"))
	}

	if deps.SubmissionHandler != nil {
		limiter := deps.SubmissionLimiter
		if limiter == nil {
			limiter = middleware.RateLimit("submissions", cfg.RateLimitMax, cfg.RateLimitWindow)
		}
		deps.SubmissionHandler.Register(api.Group("/submissions"), limiter)
	}

	if deps.AnswerHandler != nil {
		deps.AnswerHandler.Register(api.Group("/answers"))
	}
}
