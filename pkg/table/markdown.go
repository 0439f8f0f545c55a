package table

import (
	"strings"
	"unicode/utf8"
)

// Markdown renders the table as a GitHub flavored pipe table. Numeric
// columns are right aligned.
func (t *Table) Markdown() string {
	cells := make([][]string, len(t.rows))
	widths := make([]int, len(t.columns))
	for c, name := range t.columns {
		widths[c] = max(utf8.RuneCountInString(name), 3)
	}
	for r, row := range t.rows {
		cells[r] = make([]string, len(row))
		for c, v := range row {
			s := escapePipe(FormatCell(v))
			cells[r][c] = s
			widths[c] = max(widths[c], utf8.RuneCountInString(s))
		}
	}
	right := make([]bool, len(t.columns))
	for c, name := range t.columns {
		right[c] = t.IsNumeric(name)
	}

	var b strings.Builder
	writeRow := func(values []string) {
		b.WriteString("|")
		for c, v := range values {
			b.WriteString(" ")
			b.WriteString(pad(v, widths[c], right[c]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	header := make([]string, len(t.columns))
	for c, name := range t.columns {
		header[c] = escapePipe(name)
	}
	writeRow(header)

	b.WriteString("|")
	for c := range t.columns {
		if right[c] {
			b.WriteString(strings.Repeat("-", widths[c]+1))
			b.WriteString(":|")
		} else {
			b.WriteString(":")
			b.WriteString(strings.Repeat("-", widths[c]+1))
			b.WriteString("|")
		}
	}
	b.WriteString("\n")

	for _, row := range cells {
		writeRow(row)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func pad(s string, width int, right bool) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

func escapePipe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
