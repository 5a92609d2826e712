package render

import (
	"strconv"

	"github.com/noah-isme/llmcompare/internal/models"
)

const (
	// MissingScore is shown for aspects the backend did not score.
	MissingScore = "N/A"
	totalLabel   = "總分(/50)"
)

// ComparisonRow is one aspect line of the before/after comparison table.
type ComparisonRow struct {
	Aspect  string `json:"aspect"`
	English string `json:"english,omitempty"`
	Initial string `json:"initial"`
	Final   string `json:"final"`
}

// ComparisonTable holds the five aspect rows and the total row.
type ComparisonTable struct {
	Rows  []ComparisonRow `json:"rows"`
	Total ComparisonRow   `json:"total"`
}

// BuildComparisonTable zips the initial and final score lists against the fixed aspect
// order. Entries are matched by index; the total sums every listed score.
func BuildComparisonTable(initial, final []models.AspectScore) ComparisonTable {
	rows := make([]ComparisonRow, 0, len(models.Aspects))
	for idx, aspect := range models.Aspects {
		rows = append(rows, ComparisonRow{
			Aspect:  aspect.Name,
			English: aspect.English,
			Initial: scoreAt(initial, idx),
			Final:   scoreAt(final, idx),
		})
	}

	return ComparisonTable{
		Rows: rows,
		Total: ComparisonRow{
			Aspect:  totalLabel,
			Initial: formatScore(sumScores(initial)),
			Final:   formatScore(sumScores(final)),
		},
	}
}

func scoreAt(scores []models.AspectScore, idx int) string {
	if idx >= len(scores) {
		return MissingScore
	}
	return formatScore(scores[idx].Score)
}

func sumScores(scores []models.AspectScore) float64 {
	var total float64
	for _, s := range scores {
		total += s.Score
	}
	return total
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
