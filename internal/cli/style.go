package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("#00afaf")
	colorDim    = lipgloss.Color("#6e7681")
	colorWarn   = lipgloss.Color("#d7875f")
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	replyStyle   = lipgloss.NewStyle().PaddingLeft(2)
	memoryHeader = lipgloss.NewStyle().Foreground(colorAccent)
)

func header(title string) string {
	return headerStyle.Render(title) + "\n" + dimStyle.Render(strings.Repeat("─", lipgloss.Width(title)))
}

// kv renders an aligned "label: value" line.
func kv(label string, value any) string {
	return fmt.Sprintf("  %s %v", labelStyle.Width(14).Render(label+":"), value)
}
