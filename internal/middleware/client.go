package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// ClientHeader lets API callers pick their own client identifier.
	ClientHeader = "X-Client-ID"
	// ClientCookie keeps the identifier of browser clients.
	ClientCookie = "llmcompare_client"

	clientLocal = "client_id"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ClientID resolves the identifier that scopes the single in-flight submission and the
// cached final answer. Browsers without an identifier receive a cookie.
func ClientID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(ClientHeader))
		if !clientIDPattern.MatchString(id) {
			id = strings.TrimSpace(c.Cookies(ClientCookie))
		}
		if !clientIDPattern.MatchString(id) {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     ClientCookie,
				Value:    id,
				Path:     "/",
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
				Expires:  time.Now().Add(30 * 24 * time.Hour),
			})
		}

		c.Locals(clientLocal, id)
		c.Set(ClientHeader, id)
		return c.Next()
	}
}

// GetClientID returns the client identifier bound to the request, falling back to the remote IP.
func GetClientID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(clientLocal).(string); ok && id != "" {
		return id
	}
	return c.IP()
}
