package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/service"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		logger = base.With().
			Str("correlation_id", middleware.GetCorrelationID(c)).
			Str("client_id", middleware.GetClientID(c)).
			Logger()
	}
	return &logger
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// validationDetails lists the failing fields by their JSON names.
func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[jsonFieldName(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

func jsonFieldName(field string) string {
	switch field {
	case "UserQuestion":
		return "user_question"
	case "AdditionalInfo":
		return "additional_info"
	default:
		return field
	}
}

// submissionStatus maps orchestrator failures onto HTTP status codes.
func submissionStatus(err error) (int, string) {
	var stageErr *backend.StageError
	switch {
	case isValidationError(err):
		return fiber.StatusBadRequest, "請填寫問題"
	case errors.Is(err, service.ErrSubmissionInProgress):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, service.ErrNoDirectAnswer):
		return fiber.StatusBadGateway, err.Error()
	case errors.As(err, &stageErr):
		return fiber.StatusBadGateway, stageErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "reasoning backend timed out"
	default:
		return fiber.StatusInternalServerError, "處理請求時發生錯誤"
	}
}
