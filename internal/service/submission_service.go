package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/observability"
	"github.com/noah-isme/llmcompare/internal/render"
)

var (
	// ErrSubmissionInProgress indicates the client already has a submission running.
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	// ErrNoDirectAnswer indicates the first stage succeeded without producing an answer.
	ErrNoDirectAnswer = errors.New("no direct answer received")
)

// Progress stages reported while a submission runs.
const (
	ProgressStarted        = "started"
	ProgressDirectAnswered = "direct_answered"
	ProgressRefining       = "refining"
	ProgressRefined        = "refined"
	ProgressCompleted      = "completed"
)

var progressMessages = map[string]string{
	ProgressStarted:        "正在處理您的請求...",
	ProgressDirectAnswered: "直接 LLM 回答已生成，正在評估...",
	ProgressRefining:       "開始迭代優化...",
	ProgressRefined:        "迭代優化完成，正在生成最終答案...",
	ProgressCompleted:      "處理完成，顯示結果中...",
}

const (
	anonymousClient  = "anonymous"
	notAvailable     = "N/A"
	chartErrorPrefix = "圖表繪製錯誤："
	releaseTimeout   = 5 * time.Second
	defaultLockTTL   = 10 * time.Minute
)

// ProgressFunc receives progress events in order.
type ProgressFunc func(event dto.ProgressEvent)

// SubmitOptions carries per-call settings for Submit.
type SubmitOptions struct {
	ClientID string
	Progress ProgressFunc
}

// SubmissionConfig tunes the orchestrator.
type SubmissionConfig struct {
	LockTTL   time.Duration
	AnswerTTL time.Duration
}

// SubmissionService runs the direct answer stage followed by the refinement stage and
// renders the combined result.
type SubmissionService interface {
	Submit(ctx context.Context, req dto.SubmitRequest, opts SubmitOptions) (dto.SubmissionResult, error)
	LatestAnswer(ctx context.Context, clientID string) (dto.LatestAnswerResponse, bool, error)
}

type submissionService struct {
	backend   backend.Backend
	store     SessionStore
	markdown  *render.MarkdownRenderer
	validator *validator.Validate
	cfg       SubmissionConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	newID     func() string
}

// NewSubmissionService wires the orchestrator.
func NewSubmissionService(b backend.Backend, store SessionStore, markdown *render.MarkdownRenderer, validate *validator.Validate, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if markdown == nil {
		markdown = render.NewMarkdownRenderer()
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}

	return &submissionService{
		backend:   b,
		store:     store,
		markdown:  markdown,
		validator: validate,
		cfg:       cfg,
		logger:    logger.With().Str("component", "submission_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/llmcompare/internal/service/submission"),
		newID:     uuid.NewString,
	}
}

func (s *submissionService) Submit(ctx context.Context, req dto.SubmitRequest, opts SubmitOptions) (dto.SubmissionResult, error) {
	req.UserQuestion = strings.TrimSpace(req.UserQuestion)
	if err := s.validator.Struct(req); err != nil {
		observability.Submissions().WithLabelValues(observability.OutcomeInvalid).Inc()
		return dto.SubmissionResult{}, err
	}

	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = anonymousClient
	}

	submissionID := s.newID()
	logger := s.logger.With().
		Str("submission_id", submissionID).
		Str("client_id", clientID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Logger()

	acquired, err := s.store.AcquireSubmission(ctx, clientID, submissionID, s.cfg.LockTTL)
	if err != nil {
		observability.Submissions().WithLabelValues(observability.OutcomeFailed).Inc()
		return dto.SubmissionResult{}, err
	}
	if !acquired {
		observability.Submissions().WithLabelValues(observability.OutcomeRejected).Inc()
		return dto.SubmissionResult{}, ErrSubmissionInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := s.store.ReleaseSubmission(releaseCtx, clientID, submissionID); err != nil {
			logger.Warn().Err(err).Msg("failed to release submission lock")
		}
	}()

	stopKeepAlive := s.keepLock(ctx, clientID, submissionID, logger)
	defer stopKeepAlive()

	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.String("submission_id", submissionID),
	))
	defer span.End()

	result, err := s.run(ctx, submissionID, clientID, req, opts.Progress, logger)
	if err != nil {
		observability.Submissions().WithLabelValues(observability.OutcomeFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("submission failed")
		return dto.SubmissionResult{}, err
	}

	observability.Submissions().WithLabelValues(observability.OutcomeSucceeded).Inc()
	logger.Info().Int("progress_events", len(result.Progress)).Msg("submission completed")
	return result, nil
}

// keepLock refreshes the submission guard every third of its TTL until the returned
// function is called, so the guard lives as long as the chain does.
func (s *submissionService) keepLock(ctx context.Context, clientID, submissionID string, logger zerolog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(max(s.cfg.LockTTL/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ok, err := s.store.RefreshSubmission(ctx, clientID, submissionID, s.cfg.LockTTL)
				if err != nil {
					logger.Warn().Err(err).Msg("failed to refresh submission lock")
					continue
				}
				if !ok {
					logger.Warn().Msg("submission lock no longer held")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *submissionService) run(ctx context.Context, submissionID, clientID string, req dto.SubmitRequest, progress ProgressFunc, logger zerolog.Logger) (dto.SubmissionResult, error) {
	additionalInfo := ValidateURLs(req.AdditionalInfo).Value

	result := dto.SubmissionResult{
		ID:             submissionID,
		UserQuestion:   req.UserQuestion,
		AdditionalInfo: additionalInfo,
		Progress:       make([]dto.ProgressEvent, 0, len(progressMessages)),
	}

	// The recorded log stays lean; only the live callback carries the stage-1 answer.
	emitWith := func(stage string, direct *dto.DirectAnswerView) {
		event := dto.ProgressEvent{Stage: stage, Message: progressMessages[stage]}
		result.Progress = append(result.Progress, event)
		if progress != nil {
			event.Direct = direct
			progress(event)
		}
	}
	emit := func(stage string) { emitWith(stage, nil) }

	emit(ProgressStarted)
	direct, err := s.backend.DirectAnswer(ctx, dto.DirectAnswerRequest{
		UserQuestion:   req.UserQuestion,
		AdditionalInfo: additionalInfo,
	})
	if err != nil {
		return dto.SubmissionResult{}, err
	}
	if strings.TrimSpace(direct.DirectAnswer) == "" {
		return dto.SubmissionResult{}, ErrNoDirectAnswer
	}

	result.Direct = dto.DirectAnswerView{
		Text:   direct.DirectAnswer,
		HTML:   s.renderHTML(direct.DirectAnswer, logger),
		Tokens: direct.DirectTokens,
		Score:  formatScore(direct.DirectScore),
		Facts:  splitFacts(direct.OriginalFacts),
	}
	result.AdditionalInfoAccepted = true
	directView := result.Direct
	emitWith(ProgressDirectAnswered, &directView)

	emit(ProgressRefining)
	refined, err := s.backend.MainLoop(ctx, dto.MainLoopRequest{
		UserQuestion:   req.UserQuestion,
		DirectAnswer:   direct.DirectAnswer,
		DirectTokens:   direct.DirectTokens,
		DirectScore:    direct.DirectScore,
		AdditionalInfo: additionalInfo,
		OriginalFacts:  direct.OriginalFacts,
	})
	if err != nil {
		return dto.SubmissionResult{}, err
	}
	emit(ProgressRefined)

	s.applyRefinement(&result, refined, logger)
	s.saveLatestAnswer(ctx, clientID, submissionID, refined, logger)

	emit(ProgressCompleted)
	return result, nil
}

func (s *submissionService) applyRefinement(result *dto.SubmissionResult, refined dto.MainLoopResponse, logger zerolog.Logger) {
	if refined.FinalAnswer != "" {
		tokens := notAvailable
		if refined.TotalTokens != nil && *refined.TotalTokens != 0 {
			tokens = strconv.Itoa(*refined.TotalTokens)
		}
		score := 0.0
		if refined.FinalScore != nil {
			score = *refined.FinalScore
		}

		result.Final = &dto.FinalAnswerView{
			Text:     refined.FinalAnswer,
			HTML:     s.renderHTML(refined.FinalAnswer, logger),
			Markdown: refined.FinalAnswerMarkdown,
			Tokens:   tokens,
			Score:    formatScore(score),
		}
	}

	if refined.ComparisonResult != "" {
		result.Comparison = &dto.ComparisonView{
			Text:  refined.ComparisonResult,
			HTML:  s.renderHTML(refined.ComparisonResult, logger),
			Table: render.BuildComparisonTable(refined.InitialScores, refined.FinalScores),
		}
	}

	iterations, ok, err := refined.Iterations()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to decode iterations_data")
		result.ChartError = chartErrorPrefix + err.Error()
		return
	}
	if !ok {
		logger.Warn().Msg("invalid or missing iterations_data")
		return
	}

	initialScore := 0.0
	if refined.InitialScore != nil {
		initialScore = *refined.InitialScore
	}

	chart, err := render.BuildChart(initialScore, iterations)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build iteration chart")
		result.ChartError = chartErrorPrefix + err.Error()
		return
	}
	result.Chart = &chart
}

func (s *submissionService) saveLatestAnswer(ctx context.Context, clientID, submissionID string, refined dto.MainLoopResponse, logger zerolog.Logger) {
	markdown := refined.FinalAnswerMarkdown
	if markdown == "" {
		markdown = refined.FinalAnswer
	}
	if markdown == "" {
		return
	}

	answer := dto.LatestAnswerResponse{SubmissionID: submissionID, Markdown: markdown}
	if err := s.store.SaveLatestAnswer(ctx, clientID, answer, s.cfg.AnswerTTL); err != nil {
		logger.Warn().Err(err).Msg("failed to store latest answer")
	}
}

func (s *submissionService) LatestAnswer(ctx context.Context, clientID string) (dto.LatestAnswerResponse, bool, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = anonymousClient
	}
	return s.store.LatestAnswer(ctx, clientID)
}

// renderHTML falls back to escaped text so a rendering failure never hides an answer.
func (s *submissionService) renderHTML(text string, logger zerolog.Logger) string {
	out, err := s.markdown.Render(text)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to render markdown")
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return out
}

func splitFacts(raw string) []string {
	facts := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		if fact := strings.TrimSpace(line); fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
