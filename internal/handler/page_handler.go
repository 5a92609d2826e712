package handler

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/config"
	"github.com/noah-isme/llmcompare/web"
)

// PageHandler serves the single browser page.
type PageHandler struct {
	data   web.PageData
	logger zerolog.Logger
}

// NewPageHandler prepares the page with the configured application and model names.
func NewPageHandler(cfg config.Config, logger zerolog.Logger) *PageHandler {
	return &PageHandler{
		data:   web.PageData{AppName: cfg.AppName, ModelName: cfg.ModelName},
		logger: logger.With().Str("component", "page_handler").Logger(),
	}
}

// Index renders the page.
func (h *PageHandler) Index(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := web.Index.Execute(&buf, h.data); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to render index page")
		return fiber.ErrInternalServerError
	}

	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
