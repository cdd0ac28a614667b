package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Table formats columnar output using tabwriter.
type Table struct {
	w             *tabwriter.Writer
	headers       []string
	maxWidth      map[int]int // column index -> max width (0 = unlimited)
	headerWritten bool
}

// NewTable creates a table that writes to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:        tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers:  headers,
		maxWidth: make(map[int]int),
	}
}

// SetMaxWidth sets the maximum display width for a column (0-indexed).
// Values exceeding the limit are truncated with "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// AddRow appends a data row. Extra values beyond the header count are ignored;
// missing values are filled with empty strings.
func (t *Table) AddRow(values ...string) {
	if !t.headerWritten {
		t.headerWritten = true
		t.writeLine(t.headers)
		rule := make([]string, len(t.headers))
		for i, h := range t.headers {
			rule[i] = strings.Repeat("-", len(h))
		}
		t.writeLine(rule)
	}

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, values[i])
		}
	}
	t.writeLine(cells)
}

// Render flushes the underlying tabwriter. Must be called after all AddRow calls.
func (t *Table) Render() error {
	return t.w.Flush()
}

func (t *Table) writeLine(cells []string) {
	//nolint:errcheck // tabwriter buffers; Render reports the write error
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *Table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	if !ok || max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
)

// Pass renders a pass/fail marker. Color is dropped automatically when
// stdout is not a terminal or NO_COLOR is set.
func Pass(ok bool) string {
	if ok {
		return passColor.Sprint("PASS")
	}
	return failColor.Sprint("FAIL")
}

// Status colors a status word: green for good states, red for bad ones,
// yellow for everything else.
func Status(s string) string {
	switch s {
	case "completed", "ok", "allow", "valid":
		return passColor.Sprint(s)
	case "failed", "deny", "blocked", "broken", "modified", "missing":
		return failColor.Sprint(s)
	}
	return warnColor.Sprint(s)
}
