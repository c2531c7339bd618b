package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// UnmatchedRoute labels requests that no registered route handled.
const UnmatchedRoute = "unmatched"

// RouteLabel returns the registered route pattern for metric labels, never
// the raw path, so per-id URLs share one series.
func RouteLabel(c *fiber.Ctx) string {
	r := c.Route()
	// Global middleware is mounted at "/", and the fallback route fiber
	// builds for transport errors carries no handlers.
	if r == nil || r.Path == "" || r.Path == "/" || len(r.Handlers) == 0 {
		return UnmatchedRoute
	}
	return utils.CopyString(r.Path)
}

// RequestLogger logs every request and feeds the request metrics.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		status := c.Response().StatusCode()
		metrics.RecordRequest(RouteLabel(c), utils.CopyString(c.Method()), status, elapsed)

		logger.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("ip", c.IP()),
		)
		return err
	}
}
