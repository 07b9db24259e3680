package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haoheliu/SongEval/pkg/songeval"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Help  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Bold(true),
		Value: lipgloss.NewStyle().Foreground(t.Primary),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// RenderSummary renders the per-file scores:
//
//	Evaluation Summary:
//	song:
//	  Coherence: 3.1235
//	  ...
func RenderSummary(results *songeval.Results, st Styles) string {
	var b strings.Builder
	b.WriteString(st.Title.Render("Evaluation Summary:"))
	b.WriteByte('\n')
	if results.Len() == 0 {
		b.WriteString(st.Help.Render("(no files evaluated)"))
		b.WriteByte('\n')
		return b.String()
	}

	for id, scores := range results.Each() {
		b.WriteString(st.Label.Render(id + ":"))
		b.WriteByte('\n')
		for _, d := range songeval.Dimensions() {
			v, _ := scores.Get(d)
			fmt.Fprintf(&b, "  %s %s\n", string(d)+":", st.Value.Render(FormatScore(v)))
		}
	}
	return b.String()
}

// RenderTable renders results as an aligned table with one row per file
// and a mean column.
func RenderTable(results *songeval.Results, st Styles) string {
	dims := songeval.DimensionNames()
	header := append([]string{"file"}, dims...)
	header = append(header, "mean")

	rows := [][]string{header}
	for id, s := range results.Each() {
		row := []string{id}
		for _, v := range s.Values() {
			row = append(row, FormatScore(v))
		}
		row = append(row, FormatScore(songeval.Round(s.Mean(), 4)))
		rows = append(rows, row)
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == 0 {
				cell += pad
			} else {
				cell = pad + cell
			}
			if r == 0 {
				cell = st.Title.Render(cell)
			}
			cells[i] = cell
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		b.WriteByte('\n')
	}
	return b.String()
}
