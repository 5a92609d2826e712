package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/llmcompare/internal/dto"
	"github.com/noah-isme/llmcompare/internal/render"
)

const totalSeriesLabel = "總分 (Score)"

// resultMarkdown lays out a submission result as one markdown document for glamour.
func resultMarkdown(result dto.SubmissionResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", result.UserQuestion)

	b.WriteString("## 直接 LLM 回答\n\n")
	b.WriteString(result.Direct.Text)
	fmt.Fprintf(&b, "\n\n*Tokens: %d · Score: %s*\n\n", result.Direct.Tokens, result.Direct.Score)
	if len(result.Direct.Facts) > 0 {
		b.WriteString("### 核心事實\n\n")
		for _, fact := range result.Direct.Facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
		b.WriteString("\n")
	}

	if result.Final != nil {
		b.WriteString("## 最終答案\n\n")
		if result.Final.Markdown != "" {
			b.WriteString(result.Final.Markdown)
		} else {
			b.WriteString(result.Final.Text)
		}
		fmt.Fprintf(&b, "\n\n*Tokens: %s · Score: %s*\n\n", result.Final.Tokens, result.Final.Score)
	}

	if result.Comparison != nil {
		b.WriteString("## 比較結果\n\n")
		b.WriteString(result.Comparison.Text)
		b.WriteString("\n\n")
		writeComparisonTable(&b, result.Comparison.Table)
	}

	switch {
	case result.Chart != nil:
		writeIterationTable(&b, *result.Chart)
	case result.ChartError != "":
		fmt.Fprintf(&b, "> %s\n", result.ChartError)
	}

	return b.String()
}

func writeComparisonTable(b *strings.Builder, table render.ComparisonTable) {
	b.WriteString("| 評估項目 | 初始答案 | 最終答案 |\n|---|---|---|\n")
	for _, row := range table.Rows {
		fmt.Fprintf(b, "| %s | %s | %s |\n", row.Aspect, row.Initial, row.Final)
	}
	fmt.Fprintf(b, "| **%s** | **%s** | **%s** |\n\n", table.Total.Aspect, table.Total.Initial, table.Total.Final)
}

// writeIterationTable prints the chart data as a table, one row per stage.
func writeIterationTable(b *strings.Builder, chart render.Chart) {
	b.WriteString("## 迭代評分\n\n| |")
	for _, ds := range chart.Data.Datasets {
		fmt.Fprintf(b, " %s |", ds.Label)
	}
	b.WriteString("\n|---|")
	b.WriteString(strings.Repeat("---|", len(chart.Data.Datasets)))
	b.WriteString("\n")

	for idx, label := range chart.Data.Labels {
		fmt.Fprintf(b, "| %s |", label)
		for _, ds := range chart.Data.Datasets {
			cell := "-"
			if idx < len(ds.Data) && !ds.Data[idx].Missing() {
				cell = strconv.FormatFloat(float64(ds.Data[idx]), 'f', -1, 64)
			}
			if ds.Label == totalSeriesLabel && cell != "-" {
				cell = "**" + cell + "**"
			}
			fmt.Fprintf(b, " %s |", cell)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
