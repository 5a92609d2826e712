package dto

import (
	"github.com/noah-isme/llmcompare/internal/render"
)

// SubmitRequest is the form payload: the question plus optional context URLs.
type SubmitRequest struct {
	UserQuestion   string `json:"user_question" validate:"required,max=4000"`
	AdditionalInfo string `json:"additional_info" validate:"max=4000"`
}

// URLValidationRequest carries the raw additional-info field value.
type URLValidationRequest struct {
	Value string `json:"value"`
}

// URLValidationResponse describes the outcome of validating the additional-info field.
type URLValidationResponse struct {
	Value   string   `json:"value"`
	Valid   []string `json:"valid_urls"`
	Invalid []string `json:"invalid_urls"`
	Dropped []string `json:"dropped_urls"`
	Alerts  []string `json:"alerts"`
	Changed bool     `json:"changed"`
}

// ProgressEvent is a user-facing status update emitted while a submission runs. The
// direct_answered event carries the first-stage answer so it can be shown before refinement.
type ProgressEvent struct {
	Stage   string            `json:"stage"`
	Message string            `json:"message"`
	Direct  *DirectAnswerView `json:"direct,omitempty"`
}

// DirectAnswerView is the displayed first-stage answer.
type DirectAnswerView struct {
	Text   string   `json:"text"`
	HTML   string   `json:"html"`
	Tokens int      `json:"tokens"`
	Score  string   `json:"score"`
	Facts  []string `json:"facts"`
}

// FinalAnswerView is the displayed refined answer. Markdown is the source offered for copying.
type FinalAnswerView struct {
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Tokens   string `json:"tokens"`
	Score    string `json:"score"`
}

// ComparisonView is the displayed comparison of both answers.
type ComparisonView struct {
	Text  string                 `json:"text"`
	HTML  string                 `json:"html"`
	Table render.ComparisonTable `json:"table"`
}

// SubmissionResult is everything the page shows once both stages succeeded.
type SubmissionResult struct {
	ID                     string           `json:"id"`
	UserQuestion           string           `json:"user_question"`
	AdditionalInfo         string           `json:"additional_info"`
	AdditionalInfoAccepted bool             `json:"additional_info_accepted"`
	Direct                 DirectAnswerView `json:"direct"`
	Final                  *FinalAnswerView `json:"final,omitempty"`
	Comparison             *ComparisonView  `json:"comparison,omitempty"`
	Chart                  *render.Chart    `json:"chart,omitempty"`
	ChartError             string           `json:"chart_error,omitempty"`
	Progress               []ProgressEvent  `json:"progress"`
}

// LatestAnswerResponse is the last final-answer markdown produced for a client.
type LatestAnswerResponse struct {
	SubmissionID string `json:"submission_id"`
	Markdown     string `json:"markdown"`
}

// SubmissionStreamEvent is a websocket frame sent while a submission runs.
type SubmissionStreamEvent struct {
	Type     string            `json:"type"`
	Progress *ProgressEvent    `json:"progress,omitempty"`
	Result   *SubmissionResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}
