package notifier

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"PatternSentinel/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6B50FF"))
	symbolStyle  = lipgloss.NewStyle().Bold(true).Width(12)
	validStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFB2"))
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#858392"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4D4C57")).Padding(0, 1)
)

// PrintRun writes a boxed per-symbol summary of run to w.
func PrintRun(w io.Writer, run *model.ScanRun) error {
	windows, valid := run.Totals()
	lines := []string{
		titleStyle.Render("Cup & Handle scan"),
		fmt.Sprintf("run %s | source %s | %s", run.ID, run.Source, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)),
		"",
	}
	for _, res := range run.Results {
		count := fmt.Sprintf("%d/%d valid", res.ValidCount(), len(res.Patterns))
		style := invalidStyle
		if res.ValidCount() > 0 {
			style = validStyle
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			symbolStyle.Render(res.Symbol), style.Render(count), fmt.Sprintf("  (%d bars)", res.Bars)))
	}
	lines = append(lines, "", fmt.Sprintf("total: %d valid of %d windows", valid, windows))

	_, err := fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
	return err
}
