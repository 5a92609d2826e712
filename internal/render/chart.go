package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/noah-isme/llmcompare/internal/models"
)

// ErrNoIterations is returned when the backend reported no refinement passes.
var ErrNoIterations = errors.New("no iteration data available")

const (
	totalAxis  = "y-axis-1"
	aspectAxis = "y-axis-2"

	// IterationScoreScale converts the backend's 0..1 iteration score to the 0..10 chart axis.
	IterationScoreScale = 10
)

// Value is a chart data point. NaN marks a missing point and encodes as null so the
// charting library leaves a gap.
type Value float64

// MarshalJSON encodes NaN and infinities as null.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// Missing reports whether the point is absent.
func (v Value) Missing() bool {
	return math.IsNaN(float64(v))
}

// Dataset is one series of the combined chart.
type Dataset struct {
	Label           string  `json:"label"`
	Data            []Value `json:"data"`
	Type            string  `json:"type,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	BorderColor     string  `json:"borderColor"`
	BorderWidth     int     `json:"borderWidth,omitempty"`
	Fill            *bool   `json:"fill,omitempty"`
	YAxisID         string  `json:"yAxisID"`
}

// ChartData holds labels and series.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// AxisTitle labels an axis.
type AxisTitle struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
}

// AxisGrid configures grid lines of an axis.
type AxisGrid struct {
	DrawOnChartArea bool `json:"drawOnChartArea"`
}

// Axis configures a linear scale.
type Axis struct {
	Type        string    `json:"type"`
	Display     bool      `json:"display"`
	Position    string    `json:"position"`
	BeginAtZero bool      `json:"beginAtZero"`
	Max         float64   `json:"max"`
	Title       AxisTitle `json:"title"`
	Grid        *AxisGrid `json:"grid,omitempty"`
}

// ChartOptions holds the chart-wide options.
type ChartOptions struct {
	Responsive bool            `json:"responsive"`
	Scales     map[string]Axis `json:"scales"`
}

// Chart is a Chart.js compatible configuration of the iteration chart.
type Chart struct {
	Type    string       `json:"type"`
	Data    ChartData    `json:"data"`
	Options ChartOptions `json:"options"`
}

type aspectColor struct {
	background string
	border     string
}

var aspectColors = []aspectColor{
	{background: "rgba(255, 99, 132, 0.2)", border: "rgba(255, 99, 132, 1)"},
	{background: "rgba(54, 162, 235, 0.2)", border: "rgba(54, 162, 235, 1)"},
	{background: "rgba(255, 206, 86, 0.2)", border: "rgba(255, 206, 86, 1)"},
	{background: "rgba(75, 192, 192, 0.2)", border: "rgba(75, 192, 192, 1)"},
	{background: "rgba(153, 102, 255, 0.2)", border: "rgba(153, 102, 255, 1)"},
}

// BuildChart builds a line series of the total score per stage and one bar series per
// aspect. The initial point carries no aspect scores.
func BuildChart(initialScore float64, iterations []models.Iteration) (Chart, error) {
	if len(iterations) == 0 {
		return Chart{}, ErrNoIterations
	}

	labels := make([]string, 0, len(iterations)+1)
	labels = append(labels, "Initial")
	totals := make([]Value, 0, len(iterations)+1)
	totals = append(totals, Value(initialScore))

	for _, it := range iterations {
		labels = append(labels, fmt.Sprintf("Iteration %d", it.Iteration))
		score := 0.0
		if it.Score != nil {
			score = *it.Score
		}
		totals = append(totals, Value(score*IterationScoreScale))
	}

	noFill := false
	datasets := make([]Dataset, 0, len(models.Aspects)+1)
	datasets = append(datasets, Dataset{
		Label:       "總分 (Score)",
		Data:        totals,
		Type:        "line",
		BorderColor: "blue",
		Fill:        &noFill,
		YAxisID:     totalAxis,
	})

	for idx, aspect := range models.Aspects {
		series := make([]Value, 0, len(iterations)+1)
		series = append(series, Value(math.NaN()))
		for _, it := range iterations {
			if score, ok := it.AspectScore(aspect.Name); ok {
				series = append(series, Value(score))
			} else {
				series = append(series, Value(math.NaN()))
			}
		}

		color := aspectColors[idx%len(aspectColors)]
		datasets = append(datasets, Dataset{
			Label:           fmt.Sprintf("%s (%s)", aspect.Name, aspect.English),
			Data:            series,
			BackgroundColor: color.background,
			BorderColor:     color.border,
			BorderWidth:     1,
			YAxisID:         aspectAxis,
		})
	}

	return Chart{
		Type: "bar",
		Data: ChartData{Labels: labels, Datasets: datasets},
		Options: ChartOptions{
			Responsive: true,
			Scales: map[string]Axis{
				totalAxis: {
					Type:        "linear",
					Display:     true,
					Position:    "left",
					BeginAtZero: true,
					Max:         10,
					Title:       AxisTitle{Display: true, Text: "總分"},
				},
				aspectAxis: {
					Type:        "linear",
					Display:     true,
					Position:    "right",
					BeginAtZero: true,
					Max:         10,
					Title:       AxisTitle{Display: true, Text: "各項評分"},
					Grid:        &AxisGrid{DrawOnChartArea: false},
				},
			},
		},
	}, nil
}
