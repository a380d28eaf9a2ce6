package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	applogger "github.com/kurid3v/AVinci/internal/logger"
)

func newCorrelationApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		return c.SendString(applogger.CorrelationID(c.UserContext()))
	})
	return app
}

func TestCorrelationIDReusesClientHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("X-Correlation-ID", "req-123")

	resp, err := newCorrelationApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-123", resp.Header.Get("X-Correlation-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "req-123", string(body))
}

func TestCorrelationIDReplacesUnsafeHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("X-Correlation-ID", "bad id {inject}")

	resp, err := newCorrelationApp().Test(req)
	require.NoError(t, err)

	id := resp.Header.Get("X-Correlation-ID")
	_, parseErr := uuid.Parse(id)
	require.NoError(t, parseErr)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, id, string(body))
}

func TestRateLimitRespondsWithEnvelope(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "student-1")
		return c.Next()
	})
	app.Use(RateLimit("ai", 1, time.Minute))
	app.Get("/api/v1/ai/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ai/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/ai/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "60", resp.Header.Get("Retry-After"))
}
