package daemon

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// authMiddleware validates bearer tokens. If token is empty, no
// authentication is required and all requests pass through.
func authMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		auth := c.Get(fiber.HeaderAuthorization)
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		return c.Next()
	}
}
