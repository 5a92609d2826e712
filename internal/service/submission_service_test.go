package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/llmcompare/internal/backend"
	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/models"
	"github.com/noah-isme/llmcompare/internal/render"
)

type stubBackend struct {
	direct      dto.DirectAnswerResponse
	directErr   error
	refined     dto.MainLoopResponse
	refinedErr  error
	directReqs  []dto.DirectAnswerRequest
	refinedReqs []dto.MainLoopRequest
	onDirect    func()
}

func (s *stubBackend) DirectAnswer(_ context.Context, req dto.DirectAnswerRequest) (dto.DirectAnswerResponse, error) {
	s.directReqs = append(s.directReqs, req)
	if s.onDirect != nil {
		s.onDirect()
	}
	if s.directErr != nil {
		return dto.DirectAnswerResponse{}, s.directErr
	}
	return s.direct, nil
}

func (s *stubBackend) MainLoop(_ context.Context, req dto.MainLoopRequest) (dto.MainLoopResponse, error) {
	s.refinedReqs = append(s.refinedReqs, req)
	if s.refinedErr != nil {
		return dto.MainLoopResponse{}, s.refinedErr
	}
	return s.refined, nil
}

var _ backend.Backend = (*stubBackend)(nil)

func intPointer(v int) *int {
	return &v
}

func floatPointer(v float64) *float64 {
	return &v
}

func successfulBackend() *stubBackend {
	return &stubBackend{
		direct: dto.DirectAnswerResponse{
			DirectAnswer:  "Go is **fast**",
			DirectTokens:  120,
			DirectScore:   6.456,
			OriginalFacts: "fact one\n\nfact two\n",
		},
		refined: dto.MainLoopResponse{
			FinalAnswer:         "1. **Concurrency**\n2. Tooling",
			FinalAnswerMarkdown: "1. **Concurrency**\n2. Tooling",
			TotalTokens:         intPointer(2048),
			FinalScore:          floatPointer(8.9),
			ComparisonResult:    "多層次回答較佳",
			InitialScores:       []models.AspectScore{{Aspect: "準確性", Score: 7}},
			FinalScores:         []models.AspectScore{{Aspect: "準確性", Score: 9}, {Aspect: "全面性", Score: 8}},
			InitialScore:        floatPointer(6.4),
			IterationsData:      json.RawMessage(`[{"iteration":1,"score":0.8,"scores":[["準確性",8]]}]`),
		},
	}
}

func newTestSubmissionService(b backend.Backend, store SessionStore) *submissionService {
	svc := NewSubmissionService(b, store, render.NewMarkdownRenderer(), validator.New(validator.WithRequiredStructEnabled()), SubmissionConfig{
		LockTTL:   time.Minute,
		AnswerTTL: time.Hour,
	}, zerolog.Nop()).(*submissionService)
	svc.newID = func() string { return "sub-1" }
	return svc
}

func TestSubmitRunsBothStagesInOrder(t *testing.T) {
	b := successfulBackend()
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	var events []string
	result, err := svc.Submit(context.Background(), dto.SubmitRequest{
		UserQuestion:   "  Why Go?  ",
		AdditionalInfo: "https://go.dev/doc https://example.com/a.png",
	}, SubmitOptions{ClientID: "client-a", Progress: func(e dto.ProgressEvent) { events = append(events, e.Stage) }})
	require.NoError(t, err)

	require.Equal(t, []string{ProgressStarted, ProgressDirectAnswered, ProgressRefining, ProgressRefined, ProgressCompleted}, events)
	require.Len(t, result.Progress, 5)
	require.Equal(t, "處理完成，顯示結果中...", result.Progress[4].Message)

	require.Len(t, b.directReqs, 1)
	require.Equal(t, "Why Go?", b.directReqs[0].UserQuestion)
	require.Equal(t, "https://go.dev/doc", b.directReqs[0].AdditionalInfo)

	require.Len(t, b.refinedReqs, 1)
	require.Equal(t, dto.MainLoopRequest{
		UserQuestion:   "Why Go?",
		DirectAnswer:   "Go is **fast**",
		DirectTokens:   120,
		DirectScore:    6.456,
		AdditionalInfo: "https://go.dev/doc",
		OriginalFacts:  "fact one\n\nfact two\n",
	}, b.refinedReqs[0])

	require.Equal(t, "sub-1", result.ID)
	require.True(t, result.AdditionalInfoAccepted)
	require.Equal(t, "6.46", result.Direct.Score)
	require.Equal(t, 120, result.Direct.Tokens)
	require.Equal(t, []string{"fact one", "fact two"}, result.Direct.Facts)
	require.Contains(t, result.Direct.HTML, "<strong>fast</strong>")

	require.NotNil(t, result.Final)
	require.Equal(t, "2048", result.Final.Tokens)
	require.Equal(t, "8.90", result.Final.Score)
	require.Contains(t, result.Final.HTML, "<strong>Concurrency</strong>")

	require.NotNil(t, result.Comparison)
	require.Equal(t, "7", result.Comparison.Table.Rows[0].Initial)
	require.Equal(t, "9", result.Comparison.Table.Rows[0].Final)
	require.Equal(t, "17", result.Comparison.Table.Total.Final)

	require.NotNil(t, result.Chart)
	require.Empty(t, result.ChartError)
	require.Equal(t, []string{"Initial", "Iteration 1"}, result.Chart.Data.Labels)
	require.InDelta(t, 6.4, float64(result.Chart.Data.Datasets[0].Data[0]), 1e-9)
	require.InDelta(t, 8, float64(result.Chart.Data.Datasets[0].Data[1]), 1e-9)

	latest, found, err := svc.LatestAnswer(context.Background(), "client-a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1. **Concurrency**\n2. Tooling", latest.Markdown)
	require.Equal(t, "sub-1", latest.SubmissionID)
}

func TestSubmitRejectsMissingQuestionWithoutCallingBackend(t *testing.T) {
	b := successfulBackend()
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "   "}, SubmitOptions{ClientID: "client-a"})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	require.Empty(t, b.directReqs)
	require.Empty(t, b.refinedReqs)
}

func TestSubmitStopsWhenDirectStageFails(t *testing.T) {
	b := successfulBackend()
	b.directErr = &backend.StageError{Stage: backend.StageDirect, StatusCode: http.StatusInternalServerError}
	store := NewMemorySessionStore()
	svc := newTestSubmissionService(b, store)

	var events []string
	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{
		ClientID: "client-a",
		Progress: func(e dto.ProgressEvent) { events = append(events, e.Stage) },
	})

	var stageErr *backend.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, http.StatusInternalServerError, stageErr.StatusCode)
	require.Empty(t, b.refinedReqs)
	require.Equal(t, []string{ProgressStarted}, events)

	// The guard is released so the client can submit again.
	ok, err := store.AcquireSubmission(context.Background(), "client-a", "sub-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubmitTreatsMissingDirectAnswerAsError(t *testing.T) {
	b := successfulBackend()
	b.direct.DirectAnswer = ""
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.ErrorIs(t, err, ErrNoDirectAnswer)
	require.Empty(t, b.refinedReqs)
}

func TestSubmitReportsRefinementFailure(t *testing.T) {
	b := successfulBackend()
	b.refinedErr = &backend.StageError{Stage: backend.StageMainLoop, StatusCode: http.StatusBadGateway}
	store := NewMemorySessionStore()
	svc := newTestSubmissionService(b, store)

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	var stageErr *backend.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, backend.StageMainLoop, stageErr.Stage)

	_, found, err := svc.LatestAnswer(context.Background(), "client-a")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSubmitRejectsConcurrentSubmissionFromSameClient(t *testing.T) {
	store := NewMemorySessionStore()
	b := successfulBackend()
	svc := newTestSubmissionService(b, store)

	var nestedErr error
	b.onDirect = func() {
		_, nestedErr = svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "again"}, SubmitOptions{ClientID: "client-a"})
	}

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.NoError(t, err)
	require.ErrorIs(t, nestedErr, ErrSubmissionInProgress)
	require.Len(t, b.directReqs, 1)
}

func TestSubmitOptionalFieldsFallBack(t *testing.T) {
	b := successfulBackend()
	b.refined = dto.MainLoopResponse{
		FinalAnswer:    "plain answer",
		IterationsData: json.RawMessage(`[]`),
	}
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	result, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Final)
	require.Equal(t, "N/A", result.Final.Tokens)
	require.Equal(t, "0.00", result.Final.Score)
	require.Nil(t, result.Comparison)
	require.Nil(t, result.Chart)
	require.Equal(t, "圖表繪製錯誤：no iteration data available", result.ChartError)

	latest, found, err := svc.LatestAnswer(context.Background(), "")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "plain answer", latest.Markdown)
}

func TestSubmitSkipsChartWhenIterationsAbsent(t *testing.T) {
	b := successfulBackend()
	b.refined.IterationsData = nil
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	result, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.NoError(t, err)
	require.Nil(t, result.Chart)
	require.Empty(t, result.ChartError)
}

func TestSubmitHoldsLockWhileChainOutlivesTTL(t *testing.T) {
	store := NewMemorySessionStore()
	b := successfulBackend()
	svc := newTestSubmissionService(b, store)
	svc.cfg.LockTTL = 60 * time.Millisecond

	var secondErr error
	b.onDirect = func() {
		if len(b.directReqs) > 1 {
			return
		}
		time.Sleep(100 * time.Millisecond)
		_, secondErr = svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "again"}, SubmitOptions{ClientID: "client-a"})
		time.Sleep(50 * time.Millisecond)
	}

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.NoError(t, err)
	require.ErrorIs(t, secondErr, ErrSubmissionInProgress)
	require.Len(t, b.directReqs, 1)

	ok, err := store.AcquireSubmission(context.Background(), "client-a", "sub-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubmitReportsUndecodableIterationsAsChartError(t *testing.T) {
	b := successfulBackend()
	b.refined.IterationsData = json.RawMessage(`[{"iteration":1,"score":0.8,"scores":[["準確性"]]}]`)
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	result, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.NoError(t, err)
	require.NotNil(t, result.Final)
	require.Nil(t, result.Chart)
	require.Contains(t, result.ChartError, "圖表繪製錯誤：decode iterations_data")
}

func TestSubmitChartsScorePairsWithComments(t *testing.T) {
	b := successfulBackend()
	var refined dto.MainLoopResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"final_answer":"better",
		"initial_scores":[["準確性",7,"comment"]],
		"final_scores":[["準確性",9,"sharper"]],
		"initial_score":6,
		"iterations_data":[{"iteration":1,"score":0.8,"scores":[["準確性",8,"good"]]}]
	}`), &refined))
	b.refined = refined
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	result, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{ClientID: "client-a"})
	require.NoError(t, err)
	require.Empty(t, result.ChartError)
	require.NotNil(t, result.Chart)

	accuracy, ok := findSeries(*result.Chart, "準確性 (Accuracy)")
	require.True(t, ok)
	require.InDelta(t, 8, float64(accuracy.Data[1]), 1e-9)
	require.NotNil(t, result.Comparison)
	require.Equal(t, "9", result.Comparison.Table.Rows[0].Final)
}

func TestSubmitStreamsDirectAnswerBeforeRefinementFails(t *testing.T) {
	b := successfulBackend()
	b.refinedErr = &backend.StageError{Stage: backend.StageMainLoop, StatusCode: http.StatusBadGateway}
	svc := newTestSubmissionService(b, NewMemorySessionStore())

	var events []dto.ProgressEvent
	result, err := svc.Submit(context.Background(), dto.SubmitRequest{UserQuestion: "Why Go?"}, SubmitOptions{
		ClientID: "client-a",
		Progress: func(e dto.ProgressEvent) { events = append(events, e) },
	})
	require.Error(t, err)
	require.Empty(t, result.ID)

	require.Len(t, events, 3)
	require.Equal(t, ProgressDirectAnswered, events[1].Stage)
	require.NotNil(t, events[1].Direct)
	require.Equal(t, "Go is **fast**", events[1].Direct.Text)
	require.Equal(t, "6.46", events[1].Direct.Score)
	require.Contains(t, events[1].Direct.HTML, "<strong>fast</strong>")
	require.Nil(t, events[0].Direct)
	require.Nil(t, events[2].Direct)
}

func findSeries(chart render.Chart, label string) (render.Dataset, bool) {
	for _, ds := range chart.Data.Datasets {
		if ds.Label == label {
			return ds, true
		}
	}
	return render.Dataset{}, false
}
