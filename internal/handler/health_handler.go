package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/llmcompare/internal/config"
	"github.com/noah-isme/llmcompare/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Service      string    `json:"service"`
	Environment  string    `json:"environment"`
	Model        string    `json:"model"`
	SessionStore string    `json:"session_store"`
}

// HealthCheck returns a handler that reports application health information.
// sessionStore names the backing store of the submission guard ("redis" or "memory").
func HealthCheck(cfg config.Config, sessionStore string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:       "ok",
			Timestamp:    time.Now().UTC(),
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			Model:        cfg.ModelName,
			SessionStore: sessionStore,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
