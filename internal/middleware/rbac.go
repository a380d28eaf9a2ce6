package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kurid3v/AVinci/internal/utils"
)

// RequireRole admits callers whose token role is one of roles. A request with
// no role at all never passed authentication and gets 401 instead of 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		raw, _ := c.Locals("user_role").(string)
		role := normalizeRole(raw)
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
