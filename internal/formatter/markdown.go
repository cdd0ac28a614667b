package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/boshu2/warden/internal/ledger"
)

// LedgerMarkdown writes a run record as a Markdown report with YAML
// frontmatter, suitable for attaching to a pull request.
func LedgerMarkdown(w io.Writer, l *ledger.Ledger) error {
	tmpl, err := template.New("ledger").Funcs(template.FuncMap{
		"ts":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
		"num": func(v float64) string { return trimFloat(v) },
	}).Parse(ledgerTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, l)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

const ledgerTemplate = `---
run_id: {{ .RunID }}
recipe: {{ .RecipeID }}
status: {{ .Status }}
started_at: {{ ts .StartedAt }}
{{- with .CompletedAt }}
completed_at: {{ ts . }}
{{- end }}
---

# Run {{ .RunID }}

**Recipe:** ` + "`{{ .RecipeID }}`" + `
**Status:** {{ .Status }}
{{- with .SnapshotID }}
**Undo snapshot:** ` + "`{{ . }}`" + `
{{- end }}
{{- with .ErrorMessage }}
**Error:** {{ . }}
{{- end }}

{{- with .Metrics }}

## Metrics

| Category | Before | After |
|----------|--------|-------|
{{- $after := .After }}
{{- range $name := .Before.Names }}
| {{ $name }} | {{ num ($.Metrics.Before.Get $name) }} | {{ num ($after.Get $name) }} |
{{- end }}
| **total** | {{ num .Before.TotalIssues }} | {{ num .After.TotalIssues }} |

Improvement: {{ pct .Improvement }}
{{- end }}

{{- if .Edits }}

## Edits

| Path | Operation | Diff size |
|------|-----------|-----------|
{{- range .Edits }}
| ` + "`{{ .Path }}`" + ` | {{ .Operation }} | {{ .DiffSize }} |
{{- end }}
{{- end }}

{{- if .Notes }}

## Notes

{{- range .Notes }}
- {{ . }}
{{- end }}
{{- end }}
`
