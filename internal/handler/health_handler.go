package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kurid3v/AVinci/internal/config"
	"github.com/kurid3v/AVinci/internal/utils"
)

const healthProbeTimeout = 2 * time.Second

// HealthProbe checks one backing dependency such as the database or Redis.
type HealthProbe func(ctx context.Context) error

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	AIProvider   string            `json:"aiProvider"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck reports liveness plus the state of every probe. A failing probe
// turns the answer into 503 so load balancers stop routing grading traffic.
func HealthCheck(cfg config.Config, probes map[string]HealthProbe) fiber.Handler {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:       "ok",
			Timestamp:    time.Now().UTC(),
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			AIProvider:   cfg.AIProvider,
			Dependencies: make(map[string]string, len(names)),
		}

		for _, name := range names {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
			err := probes[name](ctx)
			cancel()
			if err != nil {
				payload.Status = "degraded"
				payload.Dependencies[name] = err.Error()
				continue
			}
			payload.Dependencies[name] = "ok"
		}

		if payload.Status != "ok" {
			return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "service degraded", payload)
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
