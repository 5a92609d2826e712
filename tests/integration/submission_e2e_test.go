package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/config"
	"github.com/noah-isme/llmcompare/internal/database"
	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/handler"
	"github.com/noah-isme/llmcompare/internal/middleware"
	"github.com/noah-isme/llmcompare/internal/render"
	"github.com/noah-isme/llmcompare/internal/router"
	"github.com/noah-isme/llmcompare/internal/service"
)

type fakeReasoningBackend struct {
	mu            sync.Mutex
	calls         []string
	correlations  []string
	directRequest dto.DirectAnswerRequest
	mainLoopBody  map[string]interface{}
	directStatus  int
}

func (f *fakeReasoningBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/direct_llm", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, "direct_llm")
		f.correlations = append(f.correlations, r.Header.Get("X-Correlation-ID"))
		f.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&f.directRequest); err != nil {
			http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
			return
		}

		if f.directStatus != 0 {
			w.WriteHeader(f.directStatus)
			_, _ = w.Write([]byte(`{"error":"user_question is required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"direct_answer":"Go is a language.","direct_tokens":42,"direct_score":6.5,"original_facts":"fact one\n\nfact two"}`))
	})
	mux.HandleFunc("/main_loop", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, "main_loop")
		f.mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&f.mainLoopBody); err != nil {
			http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
			return
		}

		_, _ = w.Write([]byte(`{
			"final_answer": "1. **Go** is compiled.",
			"final_answer_markdown": "1. **Go** is compiled.",
			"total_tokens": 321,
			"final_score": 8.75,
			"comparison_result": "The final answer is deeper.",
			"initial_scores": [["準確性", 6], ["全面性", 5], ["深度", 4], ["相關例子", 3], ["論證的邏輯性", 6]],
			"final_scores": [["準確性", 9], ["全面性", 8], ["深度", 8], ["相關例子", 7]],
			"initial_score": 6.5,
			"iterations_data": [{"iteration": 1, "score": 0.8, "scores": [["準確性", 9], ["深度", 8]]}]
		}`))
	})
	return mux
}

func setupApp(t *testing.T, fake *fakeReasoningBackend) *fiber.App {
	t.Helper()

	upstream := httptest.NewServer(fake.handler())
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	redisClient, err := database.ConnectRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.New(io.Discard)
	cfg := config.Config{
		AppName:         "LLM Compare",
		AppEnv:          "test",
		BackendURL:      upstream.URL,
		BackendTimeout:  5 * time.Second,
		ModelName:       "test-model",
		RateLimitMax:    50,
		RateLimitWindow: time.Minute,
	}

	client, err := backend.NewClient(backend.Config{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout, Logger: logger})
	require.NoError(t, err)

	store := service.NewRedisSessionStore(redisClient, "llmcompare-test")
	svc := service.NewSubmissionService(client, store, render.NewMarkdownRenderer(), validator.New(validator.WithRequiredStructEnabled()),
		service.SubmissionConfig{LockTTL: time.Minute, AnswerTTL: time.Hour}, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		URLHandler:        handler.NewURLHandler(logger),
		SubmissionHandler: handler.NewSubmissionHandler(svc, logger),
		AnswerHandler:     handler.NewAnswerHandler(svc, logger),
		SessionStore:      "redis",
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, target interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ClientHeader, "e2e-client")
	req.Header.Set("X-Correlation-ID", "e2e-corr")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestSubmissionEndToEnd(t *testing.T) {
	fake := &fakeReasoningBackend{}
	app := setupApp(t, fake)

	var payload struct {
		Success bool                 `json:"success"`
		Data    dto.SubmissionResult `json:"data"`
	}
	status := doJSON(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{
		UserQuestion:   "  What is Go?  ",
		AdditionalInfo: "https://go.dev https://example.com/logo.png",
	}, &payload)
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, payload.Success)

	require.Equal(t, []string{"direct_llm", "main_loop"}, fake.calls)
	require.Equal(t, []string{"e2e-corr"}, fake.correlations)
	require.Equal(t, "What is Go?", fake.directRequest.UserQuestion)
	require.Equal(t, "https://go.dev", fake.directRequest.AdditionalInfo)
	require.Equal(t, "Go is a language.", fake.mainLoopBody["direct_answer"])
	require.Equal(t, "fact one\n\nfact two", fake.mainLoopBody["original_facts"])

	result := payload.Data
	require.Equal(t, "6.50", result.Direct.Score)
	require.Equal(t, []string{"fact one", "fact two"}, result.Direct.Facts)
	require.True(t, result.AdditionalInfoAccepted)

	require.NotNil(t, result.Final)
	require.Equal(t, "321", result.Final.Tokens)
	require.Equal(t, "8.75", result.Final.Score)
	require.Contains(t, result.Final.HTML, "<strong>Go</strong>")

	require.NotNil(t, result.Comparison)
	require.Equal(t, "N/A", result.Comparison.Table.Rows[4].Final)
	require.Equal(t, "24", result.Comparison.Table.Total.Initial)
	require.Equal(t, "32", result.Comparison.Table.Total.Final)

	require.NotNil(t, result.Chart)
	require.Empty(t, result.ChartError)
	require.Equal(t, []string{"Initial", "Iteration 1"}, result.Chart.Data.Labels)

	require.Len(t, result.Progress, 5)
	require.Equal(t, service.ProgressStarted, result.Progress[0].Stage)
	require.Equal(t, service.ProgressCompleted, result.Progress[4].Stage)

	var latest struct {
		Data dto.LatestAnswerResponse `json:"data"`
	}
	status = doJSON(t, app, http.MethodGet, "/api/v1/answers/latest", nil, &latest)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, result.ID, latest.Data.SubmissionID)
	require.Equal(t, "1. **Go** is compiled.", latest.Data.Markdown)
}

func TestSubmissionStageOneFailureSkipsRefinement(t *testing.T) {
	fake := &fakeReasoningBackend{directStatus: http.StatusBadRequest}
	app := setupApp(t, fake)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	status := doJSON(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{UserQuestion: "q"}, &payload)
	require.Equal(t, fiber.StatusBadGateway, status)
	require.False(t, payload.Success)
	require.Contains(t, payload.Message, "status: 400")
	require.Equal(t, []string{"direct_llm"}, fake.calls)

	status = doJSON(t, app, http.MethodGet, "/api/v1/answers/latest", nil, nil)
	require.Equal(t, fiber.StatusNotFound, status)

	// the guard was released, so a retry reaches the backend again
	fake.directStatus = 0
	status = doJSON(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{UserQuestion: "q"}, nil)
	require.Equal(t, fiber.StatusOK, status)
}

func TestSubmissionWithoutQuestionNeverCallsBackend(t *testing.T) {
	fake := &fakeReasoningBackend{}
	app := setupApp(t, fake)

	status := doJSON(t, app, http.MethodPost, "/api/v1/submissions", dto.SubmitRequest{UserQuestion: "   "}, nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Empty(t, fake.calls)
}
