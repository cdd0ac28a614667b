package formatter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/boshu2/warden/internal/ledger"
	"github.com/boshu2/warden/internal/metrics"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"jsonl", FormatJSONL, false},
		{"yaml", FormatYAML, false},
		{"markdown", FormatMarkdown, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

type row struct {
	ID    string  `json:"id" yaml:"id"`
	Trust float64 `json:"trust" yaml:"trust"`
}

func TestWrite(t *testing.T) {
	rows := []row{{"a", 0.5}, {"b<c", 1}}

	var js bytes.Buffer
	if err := Write(&js, FormatJSON, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), `"id": "b<c"`) {
		t.Errorf("json output:\n%s", js.String())
	}

	var jl bytes.Buffer
	if err := Write(&jl, FormatJSONL, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(jl.String(), "\n"), "\n")
	if len(lines) != 2 || lines[0] != `{"id":"a","trust":0.5}` {
		t.Errorf("jsonl output:\n%s", jl.String())
	}

	var jlOne bytes.Buffer
	if err := Write(&jlOne, FormatJSONL, rows[0]); err != nil {
		t.Fatal(err)
	}
	if strings.Count(jlOne.String(), "\n") != 1 {
		t.Errorf("jsonl single value:\n%s", jlOne.String())
	}

	var y bytes.Buffer
	if err := Write(&y, FormatYAML, rows); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(y.String(), "- id: a") {
		t.Errorf("yaml output:\n%s", y.String())
	}

	if err := Write(&y, FormatTable, rows); err == nil {
		t.Error("Write(table) should fail")
	}
}

func TestLedgerMarkdown(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := start.Add(time.Minute)
	before := metrics.New("/repo", map[string]float64{"lint": 10, "type": 2})
	after := metrics.New("/repo", map[string]float64{"lint": 4, "type": 2})
	l := &ledger.Ledger{
		RunID:       "20260301-120000.000-import-cleaner",
		RecipeID:    "import-cleaner",
		StartedAt:   start,
		CompletedAt: &done,
		Status:      ledger.StatusCompleted,
		Edits:       []ledger.Edit{{Path: "src/index.ts", DiffSize: 3, Operation: "modify"}},
		Notes:       []string{"verify: 2 gate(s) passed"},
		Metrics:     ledger.NewSummary(before, after),
		SnapshotID:  "20260301-120000.000001",
	}

	var buf bytes.Buffer
	if err := LedgerMarkdown(&buf, l); err != nil {
		t.Fatalf("LedgerMarkdown: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"run_id: 20260301-120000.000-import-cleaner",
		"completed_at: 2026-03-01T12:01:00Z",
		"| lint | 10 | 4 |",
		"| **total** | 12 | 6 |",
		"Improvement: 50.0%",
		"| `src/index.ts` | modify | 3 |",
		"- verify: 2 gate(s) passed",
		"**Undo snapshot:** `20260301-120000.000001`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestLedgerMarkdown_InProgress(t *testing.T) {
	var buf bytes.Buffer
	l := &ledger.Ledger{RunID: "r", RecipeID: "noop", Status: ledger.StatusInProgress}
	if err := LedgerMarkdown(&buf, l); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "completed_at") || strings.Contains(out, "## Metrics") || strings.Contains(out, "## Edits") {
		t.Errorf("unexpected sections:\n%s", out)
	}
}
