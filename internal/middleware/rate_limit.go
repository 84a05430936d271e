package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-workshop-api/internal/utils"
)

// RateLimit throttles an endpoint per user and workshop. Anonymous callers are keyed
// by IP address.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			user := c.IP()
			if id, ok := c.Locals(LocalUserID).(uint); ok && id != 0 {
				user = fmt.Sprintf("u%d", id)
			}
			return fmt.Sprintf("%s:%s:%s", identifier, c.Params("id"), user)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "too many requests")
		},
	})
}
