package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/service"
	"github.com/noah-isme/llmcompare/internal/utils"
)

// Stream event types sent over the submission websocket.
const (
	StreamEventProgress = "progress"
	StreamEventResult   = "result"
	StreamEventError    = "error"
)

// SubmissionHandler exposes the two-stage submission over HTTP and websocket.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs a submission handler.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register binds submission routes. limit guards the routes that start a submission.
func (h *SubmissionHandler) Register(router fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			c.Locals("stream_client_id", middleware.GetClientID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Post("/", limit, h.Submit)
	router.Get("/ws", limit, websocket.New(h.stream))
}

// Submit runs both stages and returns the rendered result.
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.Submit(requestContext(c), req, service.SubmitOptions{
		ClientID: middleware.GetClientID(c),
	})
	if err != nil {
		status, message := submissionStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Int("status", status).Msg("submission failed")
		}
		var details interface{}
		if fields := validationDetails(err); fields != nil {
			details = fields
		}
		return utils.Fail(c, status, message, details)
	}

	return utils.SendSuccess(c, "submission completed", result)
}

func (h *SubmissionHandler) stream(conn *websocket.Conn) {
	defer conn.Close()

	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	clientID, _ := conn.Locals("stream_client_id").(string)

	logger := h.logger.With().
		Str("client_id", clientID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Logger()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		logger.Debug().Err(err).Msg("submission stream closed before request")
		return
	}

	var writeMu sync.Mutex
	send := func(event dto.SubmissionStreamEvent) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug().Err(err).Str("type", event.Type).Msg("failed to write stream event")
		}
	}

	var req dto.SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		send(dto.SubmissionStreamEvent{Type: StreamEventError, Error: "invalid request payload"})
		h.closeStream(conn, websocket.CloseUnsupportedData, "invalid request payload")
		return
	}

	result, err := h.service.Submit(ctx, req, service.SubmitOptions{
		ClientID: clientID,
		Progress: func(event dto.ProgressEvent) {
			progress := event
			send(dto.SubmissionStreamEvent{Type: StreamEventProgress, Progress: &progress})
		},
	})
	if err != nil {
		_, message := submissionStatus(err)
		logger.Warn().Err(err).Msg("streamed submission failed")
		send(dto.SubmissionStreamEvent{Type: StreamEventError, Error: message})
		h.closeStream(conn, websocket.CloseNormalClosure, strings.TrimSpace(truncate(message, 120)))
		return
	}

	send(dto.SubmissionStreamEvent{Type: StreamEventResult, Result: &result})
	h.closeStream(conn, websocket.CloseNormalClosure, "completed")
}

func (h *SubmissionHandler) closeStream(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// truncate keeps close reasons within the control frame limit.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
