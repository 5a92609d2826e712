package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/service"
	"github.com/noah-isme/llmcompare/internal/utils"
)

// AnswerHandler serves the cached final-answer markdown used by the copy button.
type AnswerHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewAnswerHandler constructs an answer handler.
func NewAnswerHandler(service service.SubmissionService, logger zerolog.Logger) *AnswerHandler {
	return &AnswerHandler{
		service: service,
		logger:  logger.With().Str("component", "answer_handler").Logger(),
	}
}

// Register binds answer routes.
func (h *AnswerHandler) Register(router fiber.Router) {
	router.Get("/latest", h.Latest)
}

// Latest returns the markdown of the client's last successful submission.
func (h *AnswerHandler) Latest(c *fiber.Ctx) error {
	answer, ok, err := h.service.LatestAnswer(requestContext(c), middleware.GetClientID(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load latest answer")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load latest answer")
	}
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "no answer to copy yet")
	}

	return utils.SendSuccess(c, "latest answer", answer)
}
