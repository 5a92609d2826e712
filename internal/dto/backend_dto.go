package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/llmcompare/internal/models"
)

// DirectAnswerRequest is the body of the first stage call.
type DirectAnswerRequest struct {
	UserQuestion   string `json:"user_question"`
	AdditionalInfo string `json:"additional_info"`
}

// DirectAnswerResponse is the unrefined first-pass answer.
type DirectAnswerResponse struct {
	DirectAnswer  string  `json:"direct_answer"`
	DirectTokens  int     `json:"direct_tokens"`
	DirectScore   float64 `json:"direct_score"`
	OriginalFacts string  `json:"original_facts"`
}

// MainLoopRequest carries the first stage payload plus the original inputs into the
// refinement stage.
type MainLoopRequest struct {
	UserQuestion   string  `json:"user_question"`
	DirectAnswer   string  `json:"direct_answer"`
	DirectTokens   int     `json:"direct_tokens"`
	DirectScore    float64 `json:"direct_score"`
	AdditionalInfo string  `json:"additional_info"`
	OriginalFacts  string  `json:"original_facts"`
}

// MainLoopResponse is the result of the iterative refinement stage. Everything except the
// final answer is optional.
type MainLoopResponse struct {
	FinalAnswer         string               `json:"final_answer"`
	FinalAnswerMarkdown string               `json:"final_answer_markdown"`
	TotalTokens         *int                 `json:"total_tokens,omitempty"`
	FinalScore          *float64             `json:"final_score,omitempty"`
	ComparisonResult    string               `json:"comparison_result,omitempty"`
	InitialScores       []models.AspectScore `json:"initial_scores,omitempty"`
	FinalScores         []models.AspectScore `json:"final_scores,omitempty"`
	InitialScore        *float64             `json:"initial_score,omitempty"`
	IterationsData      json.RawMessage      `json:"iterations_data,omitempty"`
}

// Iterations decodes iterations_data. ok is false when the field is absent or not an
// array; an array whose items do not decode returns the decode error.
func (r MainLoopResponse) Iterations() ([]models.Iteration, bool, error) {
	raw := bytes.TrimSpace(r.IterationsData)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false, nil
	}

	var iterations []models.Iteration
	if err := json.Unmarshal(raw, &iterations); err != nil {
		return nil, false, fmt.Errorf("decode iterations_data: %w", err)
	}
	return iterations, true, nil
}

// BackendErrorResponse is the error body the reasoning backend returns on bad input.
type BackendErrorResponse struct {
	Error string `json:"error"`
}
