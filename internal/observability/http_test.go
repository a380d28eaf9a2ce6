package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesGradingCollectors(t *testing.T) {
	RegradeItems().WithLabelValues("updated").Inc()
	ScanRejected().WithLabelValues("too_large").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler(nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `avinci_regrade_items_total{outcome="updated"}`)
	require.Contains(t, string(body), `avinci_scan_rejected_total{reason="too_large"}`)
}
