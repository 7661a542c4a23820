// Package display renders OJ data for the terminal.
package display

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Table is a plain column-aligned table. Widths are measured in terminal
// cells so CJK course names line up.
type Table struct {
	headers []string
	rows    [][]cell
}

type cell struct {
	text  string
	paint func(a ...interface{}) string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Row appends plain cells.
func (t *Table) Row(values ...string) {
	row := make([]cell, len(values))
	for i, v := range values {
		row[i] = cell{text: v}
	}
	t.rows = append(t.rows, row)
}

// PaintedRow appends cells where paints[i], when non-nil, colours cell i.
func (t *Table) PaintedRow(values []string, paints []func(a ...interface{}) string) {
	row := make([]cell, len(values))
	for i, v := range values {
		row[i] = cell{text: v}
		if i < len(paints) {
			row[i].paint = paints[i]
		}
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table. Colour codes are applied after padding.
func (t *Table) Render(w io.Writer) error {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := runewidth.StringWidth(c.text); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	header := color.New(color.Bold).SprintFunc()
	for i, h := range t.headers {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(header(pad(h, widths[i], i == len(t.headers)-1)))
	}
	b.WriteByte('\n')
	for i, wdt := range widths {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(strings.Repeat("-", wdt))
	}
	b.WriteByte('\n')
	for _, row := range t.rows {
		for i, c := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			text := pad(c.text, widths[i], i == len(row)-1)
			if c.paint != nil {
				text = c.paint(text)
			}
			b.WriteString(text)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	return runewidth.FillRight(s, width)
}

// Truncate shortens s to width cells with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
