package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/config"
	"github.com/spec-kit/event-checkin/internal/observability"
)

// NewApp builds the fiber app with the global middlewares attached. Routes
// are added separately with RegisterRoutes.
func NewApp(cfg config.AppConfig, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		// Handlers and the memory store keep parsed values past the request.
		Immutable:             true,
		ReadTimeout:           30 * time.Second,
		ErrorHandler:          ErrorHandler(logger, metrics),
	})
	RegisterMiddlewares(app, logger, metrics, cfg.RequestTimeout())
	return app
}
