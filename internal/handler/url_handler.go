package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/service"
	"github.com/noah-isme/llmcompare/internal/utils"
)

// URLHandler validates the additional-info field while the user types.
type URLHandler struct {
	logger zerolog.Logger
}

// NewURLHandler creates a URL validation handler.
func NewURLHandler(logger zerolog.Logger) *URLHandler {
	return &URLHandler{logger: logger.With().Str("component", "url_handler").Logger()}
}

// Register binds URL routes.
func (h *URLHandler) Register(router fiber.Router) {
	router.Post("/validate", h.Validate)
}

// Validate extracts the context URLs and reports which ones survive.
func (h *URLHandler) Validate(c *fiber.Ctx) error {
	var req dto.URLValidationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result := service.ValidateURLs(req.Value)
	if result.Changed() {
		requestLogger(h.logger, c).Debug().
			Int("invalid", len(result.Invalid)).
			Int("dropped", len(result.Dropped)).
			Msg("additional info rewritten")
	}

	return utils.SendSuccess(c, "urls validated", result.Response())
}
