package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Terminal renders markdown for a terminal using the named glamour style.
func Terminal(text, style string, width int) (string, error) {
	if style == "" {
		style = "dracula"
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}

	out, err := r.Render(text)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
