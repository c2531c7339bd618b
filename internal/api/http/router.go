package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/event-checkin/internal/api/http/handlers"
	"github.com/spec-kit/event-checkin/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	QRCodes        *handlers.QRCodesHandler
	WhatsApp       *handlers.WhatsAppHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
	// MetricsRegistry is served on /metrics when set.
	MetricsRegistry *prometheus.Registry
	// MediaRoot is served on /media when credentials are stored on local disk.
	MediaRoot string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.MetricsRegistry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{})))
	}
	if cfg.MediaRoot != "" {
		app.Static("/media", cfg.MediaRoot, fiber.Static{Browse: false})
	}

	admin := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAdmin()}

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", append(admin, cfg.Auth.Me)...)

	users := app.Group("/users")
	users.Post("/register", cfg.Users.Register)
	users.Get("/pending", append(admin, cfg.Users.ListPending)...)
	users.Patch("/approve/:user_id", append(admin, cfg.Users.Approve)...)
	users.Patch("/reject/:user_id", append(admin, cfg.Users.Reject)...)
	users.Get("/:user_id", append(admin, cfg.Users.Get)...)

	qr := app.Group("/qr_codes")
	qr.Post("/scan", cfg.QRCodes.Scan)
	qr.Post("/generate/:user_id", append(admin, cfg.QRCodes.Regenerate)...)

	app.Post("/whatsapp/send_message", append(admin, cfg.WhatsApp.SendMessage)...)
}
