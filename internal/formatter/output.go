// Package formatter renders command output as tables, JSON, JSONL, YAML or
// Markdown.
package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Format is an output format name accepted by -o.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a -o value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatJSONL, FormatYAML, FormatMarkdown:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json, jsonl, yaml or markdown)", s)
}

// Structured reports whether f is a machine-readable format handled by Write.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatJSONL || f == FormatYAML
}

// Write encodes v in a structured format. For JSONL a slice is written one
// element per line; any other value is a single line.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatJSONL:
		return writeJSONL(w, v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not structured", f)
}

func writeJSONL(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return enc.Encode(v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := enc.Encode(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}
