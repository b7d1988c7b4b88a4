package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column is one table column. Cells wider than Width are cut with "…".
type Column struct {
	Title string
	Width int
}

// Row holds one cell per column; missing cells render empty.
type Row []string

// Table renders fixed-width rows for accounts, balances and event listings.
type Table struct {
	Columns []Column
	Rows    []Row
	SelIdx  int // -1 when nothing is selected
}

func NewTable(cols []Column) *Table {
	return &Table{Columns: cols, SelIdx: -1}
}

func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Len reports the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Render returns the header, a divider and every row. Padding happens before
// styling so ANSI sequences never count towards the width.
func (t *Table) Render() string {
	head := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cell := lipgloss.NewStyle().Foreground(ColorValue)

	line := func(vals []string, style func(string) string) string {
		parts := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			v := ""
			if j < len(vals) {
				v = vals[j]
			}
			parts[j] = style(fit(v, col.Width))
		}
		return strings.Join(parts, " ") + "\n"
	}

	titles := make([]string, len(t.Columns))
	rules := make([]string, len(t.Columns))
	for j, col := range t.Columns {
		titles[j] = col.Title
		rules[j] = strings.Repeat("-", col.Width)
	}

	var sb strings.Builder
	sb.WriteString(line(titles, func(s string) string { return head.Render(s) }))
	sb.WriteString(line(rules, func(s string) string { return StyleDim.Render(s) }))
	for i, row := range t.Rows {
		style := cell
		if i == t.SelIdx {
			style = StyleSelected
		}
		sb.WriteString(line(row, func(s string) string { return style.Render(s) }))
	}
	return sb.String()
}

// fit left-aligns s in exactly width runes.
func fit(s string, width int) string {
	r := []rune(s)
	switch {
	case width <= 0:
		return ""
	case len(r) > width:
		return string(r[:width-1]) + "…"
	default:
		return s + strings.Repeat(" ", width-len(r))
	}
}

// KeyValueBlock renders labelled values in a bordered box. Keys are aligned
// on the longest one.
func KeyValueBlock(title string, pairs [][2]string) string {
	keyW := 0
	for _, p := range pairs {
		if n := len([]rune(p[0])) + 1; n > keyW {
			keyW = n
		}
	}

	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title) + "\n")
	}
	for _, p := range pairs {
		sb.WriteString("  " + StyleMeta.Render(fit(p[0]+":", keyW)) + "  " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(sb.String())
}
