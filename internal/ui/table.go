package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/untoldecay/kuzugo/internal/types"
)

// Table styles
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "117"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorAccent).
				Align(lipgloss.Center)

	TableBorderStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// RenderResult renders a query result as a bordered table sized to the
// terminal, or plain tab-separated text when ShouldUseColor reports false.
func RenderResult(columns []string, rows [][]types.Value) string {
	if len(columns) == 0 {
		return ""
	}
	if !ShouldUseColor() {
		var sb strings.Builder
		sb.WriteString(strings.Join(columns, "\t"))
		sb.WriteByte('\n')
		for _, row := range rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = v.String()
			}
			sb.WriteString(strings.Join(cells, "\t"))
			sb.WriteByte('\n')
		}
		return sb.String()
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(min(GetWidth(), 120)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(columns...)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		t.Row(cells...)
	}
	return t.Render() + "\n"
}
