package render

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	numberedBoldPattern = regexp.MustCompile(`<li>\s*(\d+\.)\s*<strong>`)
	paragraphPattern    = regexp.MustCompile(`<p>`)
	listItemPattern     = regexp.MustCompile(`<li>`)
)

const (
	paragraphStyle = "margin-bottom: 0.7em;"
	listItemStyle  = "margin-bottom: 0.3em;"
)

// MarkdownRenderer converts answer text into display HTML.
type MarkdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdownRenderer builds a renderer that honours single line breaks and raw HTML.
// Raw HTML is passed through a UGC sanitising policy before any styling is applied.
func NewMarkdownRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithUnsafe(),
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	return &MarkdownRenderer{md: md, policy: policy}
}

// Render converts text to HTML and applies the display fixups.
func (r *MarkdownRenderer) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	html := r.policy.Sanitize(buf.String())
	html = ApplyFixups(html)

	out, err := OptimizeLayout(html)
	if err != nil {
		return "", fmt.Errorf("optimise layout: %w", err)
	}
	return out, nil
}

// ApplyFixups pulls list numerals into a following bold run and adds spacing to
// paragraphs and list items.
func ApplyFixups(html string) string {
	html = numberedBoldPattern.ReplaceAllString(html, "<li><strong>$1 ")
	html = paragraphPattern.ReplaceAllString(html, `<p style="`+paragraphStyle+`">`)
	html = listItemPattern.ReplaceAllString(html, `<li style="`+listItemStyle+`">`)
	return html
}
