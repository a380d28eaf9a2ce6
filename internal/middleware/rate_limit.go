package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/kurid3v/AVinci/internal/utils"
)

// RateLimit caps requests per caller within window. Authenticated callers are
// keyed by user id so a shared classroom IP does not throttle every student;
// anonymous callers fall back to their IP.
func RateLimit(scope string, perWindow int, window time.Duration) fiber.Handler {
	if perWindow <= 0 {
		perWindow = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return limiter.New(limiter.Config{
		Max:        perWindow,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return scope + ":user:" + userID
			}
			return scope + ":ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests, please retry later")
		},
	})
}
