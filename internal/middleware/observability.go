package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	applogger "github.com/kurid3v/AVinci/internal/logger"
	"github.com/kurid3v/AVinci/internal/observability"
)

// slowRequestThreshold marks requests logged at warn level even when they succeed.
// Grading calls routinely take seconds, so only outliers cross it.
const slowRequestThreshold = 30 * time.Second

// Observability records request metrics for /api routes and writes one
// structured access line per request, tagged with the correlation id.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api/") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app error handler settle the status before recording it.
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}
		elapsed := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
		observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		entry := applogger.ForContext(c.UserContext(), logger).With().
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Logger()
		if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
			entry = entry.With().Str("user_id", userID).Logger()
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error().Msg("request failed")
		case status >= fiber.StatusBadRequest:
			entry.Warn().Msg("request rejected")
		case elapsed >= slowRequestThreshold:
			entry.Warn().Msg("slow request")
		default:
			entry.Info().Msg("request completed")
		}

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}
