package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/middleware"
)

// Stage names, also used as metric labels.
const (
	StageDirect   = "direct_llm"
	StageMainLoop = "main_loop"
)

const maxErrorBody = 4 << 10

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llmcompare",
		Subsystem: "backend",
		Name:      "stage_duration_seconds",
		Help:      "Duration of reasoning backend stage calls",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmcompare",
		Subsystem: "backend",
		Name:      "stage_failures_total",
		Help:      "Number of failed reasoning backend stage calls",
	}, []string{"stage"})
)

// Backend is the reasoning service behind the two submission stages.
type Backend interface {
	DirectAnswer(ctx context.Context, req dto.DirectAnswerRequest) (dto.DirectAnswerResponse, error)
	MainLoop(ctx context.Context, req dto.MainLoopRequest) (dto.MainLoopResponse, error)
}

// Config defines how the backend client reaches the reasoning service.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client implements Backend over JSON/HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewClient builds a backend client. Calls are traced through an otelhttp transport.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		tracer:  otel.Tracer("github.com/noah-isme/llmcompare/internal/backend"),
		logger:  logger.With().Str("component", "backend_client").Logger(),
	}, nil
}

// DirectAnswer requests the unrefined first-pass answer.
func (c *Client) DirectAnswer(ctx context.Context, req dto.DirectAnswerRequest) (dto.DirectAnswerResponse, error) {
	var out dto.DirectAnswerResponse
	if err := c.post(ctx, StageDirect, "/direct_llm", req, &out); err != nil {
		return dto.DirectAnswerResponse{}, err
	}
	return out, nil
}

// MainLoop runs the iterative refinement stage.
func (c *Client) MainLoop(ctx context.Context, req dto.MainLoopRequest) (dto.MainLoopResponse, error) {
	var out dto.MainLoopResponse
	if err := c.post(ctx, StageMainLoop, "/main_loop", req, &out); err != nil {
		return dto.MainLoopResponse{}, err
	}
	return out, nil
}

func (c *Client) post(parent context.Context, stage, path string, in, out interface{}) error {
	ctx, span := c.tracer.Start(parent, "backend."+stage, trace.WithAttributes(
		attribute.String("stage", stage),
	))
	defer span.End()

	start := time.Now()
	err := c.do(ctx, stage, path, in, out)
	duration := time.Since(start)
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())

	logger := c.logger.With().
		Str("stage", stage).
		Str("correlation_id", middleware.CorrelationIDFromContext(parent)).
		Dur("duration", duration).
		Logger()

	if err != nil {
		stageFailures.WithLabelValues(stage).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Msg("backend stage failed")
		return err
	}

	logger.Debug().Msg("backend stage completed")
	return nil
}

func (c *Client) do(ctx context.Context, stage, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &StageError{Stage: stage, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		req.Header.Set("X-Correlation-ID", correlation)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StageError{Stage: stage, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StageError{Stage: stage, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload dto.BackendErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return ""
}
