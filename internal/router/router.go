package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codeclash-dev/codeclash-api/internal/config"
	"github.com/codeclash-dev/codeclash-api/internal/handler"
	"github.com/codeclash-dev/codeclash-api/internal/middleware"
	"github.com/codeclash-dev/codeclash-api/internal/models"
	"github.com/codeclash-dev/codeclash-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	TaskHandler       *handler.TaskHandler
	SubmissionHandler *handler.SubmissionHandler
	DashboardHandler  *handler.DashboardHandler
	UploadHandler     *handler.UploadHandler
	JWTMiddleware     fiber.Handler
	OptionalJWT       fiber.Handler
	SubmissionLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	optionalJWT := deps.OptionalJWT
	if optionalJWT == nil {
		optionalJWT = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Task reads are public; admins authenticate on the same routes to
	// see unredacted documents. Mutations require the admin role, gated
	// per route so the shared group prefix stays open for reads.
	if deps.TaskHandler != nil {
		tasks := api.Group("/tasks", optionalJWT)
		deps.TaskHandler.RegisterPublic(tasks)
		deps.TaskHandler.RegisterAdmin(tasks, jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions, deps.SubmissionLimiter)
	}

	if deps.DashboardHandler != nil {
		dashboard := api.Group("/dashboard", jwtMiddleware)
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.UploadHandler != nil {
		upload := api.Group("/upload", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
		deps.UploadHandler.Register(upload)
	}
}
