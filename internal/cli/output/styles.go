package output

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	symbolSuccess = "✓"
	symbolWarning = "!"
	symbolError   = "✗"
	symbolSkipped = "-"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Key     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Underline(true),
		Header2: r.NewStyle().Bold(true),
		Key:     r.NewStyle().Foreground(lipgloss.Color("12")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s *Styles) status(status string) (string, lipgloss.Style) {
	switch status {
	case "success", "completed", "pass":
		return symbolSuccess, s.Success
	case "warning", "warn", "running", "rolled_back":
		return symbolWarning, s.Warning
	case "error", "failed", "fail":
		return symbolError, s.Error
	default:
		return symbolSkipped, s.Muted
	}
}
