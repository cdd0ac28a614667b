package formatter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestTable_Output(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "RECIPE", "TRUST", "RUNS")
	tbl.AddRow("security-hardening", "0.90", "10")
	tbl.AddRow("import-cleaner", "0.50", "2")
	if err := tbl.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines (header, rule, 2 rows), got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "RECIPE") || !strings.HasPrefix(lines[1], "------") {
		t.Errorf("header/rule wrong:\n%s", out)
	}
	// Columns are aligned: TRUST starts at the same offset in every row.
	col := strings.Index(lines[0], "TRUST")
	if strings.Index(lines[2], "0.90") != col || strings.Index(lines[3], "0.50") != col {
		t.Errorf("columns not aligned:\n%s", out)
	}
}

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTable(&buf, "A", "B").Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty table wrote output:\n%s", buf.String())
	}
}

func TestTable_Truncation(t *testing.T) {
	tests := []struct {
		max  int
		in   string
		want string
	}{
		{8, "20260101-120000.000-long-recipe", "20260..."},
		{3, "abcdef", "abc"},
		{0, "unlimited", "unlimited"},
		{20, "short", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var buf bytes.Buffer
			tbl := NewTable(&buf, "ID").SetMaxWidth(0, tt.max)
			tbl.AddRow(tt.in)
			if err := tbl.Render(); err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			if got := strings.TrimSpace(lines[2]); got != tt.want {
				t.Errorf("cell = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTable_MissingAndExtraValues(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "A", "B")
	tbl.AddRow("only-one")
	tbl.AddRow("x", "y", "dropped")
	if err := tbl.Render(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("extra value rendered:\n%s", buf.String())
	}
}

func TestPassAndStatus(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	if Pass(true) != "PASS" || Pass(false) != "FAIL" {
		t.Errorf("Pass = %q/%q", Pass(true), Pass(false))
	}
	for _, s := range []string{"completed", "failed", "rolled-back"} {
		if Status(s) != s {
			t.Errorf("Status(%q) = %q without color", s, Status(s))
		}
	}
}
