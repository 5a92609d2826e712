package models

import (
	"encoding/json"
	"fmt"
)

// Aspect is one of the fixed evaluation criteria scored per iteration.
type Aspect struct {
	Name    string
	English string
}

// Aspects lists the evaluation criteria in display order. Names match the keys the
// reasoning backend uses in its score pairs.
var Aspects = []Aspect{
	{Name: "準確性", English: "Accuracy"},
	{Name: "全面性", English: "Completeness"},
	{Name: "深度", English: "Depth"},
	{Name: "相關例子", English: "Examples"},
	{Name: "論證的邏輯性", English: "Logic"},
}

// AspectScore is a single (aspect name, score) pair. On the wire it is an array led by the name and the score.
type AspectScore struct {
	Aspect string
	Score  float64
}

// MarshalJSON encodes the pair as ["name", score].
func (a AspectScore) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Aspect, a.Score})
}

// UnmarshalJSON decodes ["name", score, ...]. Elements after the score are ignored and a
// null score decodes as zero.
func (a *AspectScore) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("aspect score must be an array: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("aspect score must have at least 2 elements, got %d", len(raw))
	}

	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return fmt.Errorf("aspect name: %w", err)
	}

	var score *float64
	if err := json.Unmarshal(raw[1], &score); err != nil {
		return fmt.Errorf("aspect score for %q: %w", name, err)
	}

	a.Aspect = name
	a.Score = 0
	if score != nil {
		a.Score = *score
	}
	return nil
}

// Iteration is one refinement pass reported by the backend optimisation loop.
type Iteration struct {
	Iteration int           `json:"iteration"`
	Score     *float64      `json:"score,omitempty"`
	Scores    []AspectScore `json:"scores,omitempty"`
}

// AspectScore returns the score recorded for the named aspect, if any.
func (i Iteration) AspectScore(name string) (float64, bool) {
	for _, s := range i.Scores {
		if s.Aspect == name {
			return s.Score, true
		}
	}
	return 0, false
}
