package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew_TotalsAndClamp(t *testing.T) {
	m := New("/repo", map[string]float64{"lint": 18, "security": 919, "bogus": -4})
	if m.TotalIssues != 937 {
		t.Errorf("TotalIssues = %v, want 937", m.TotalIssues)
	}
	if m.Get("bogus") != 0 {
		t.Errorf("negative count not clamped: %v", m.Get("bogus"))
	}
	if m.Get("unknown") != 0 {
		t.Errorf("unknown category = %v, want 0", m.Get("unknown"))
	}
	if m.Get("totalIssues") != 937 {
		t.Errorf("Get(totalIssues) = %v, want 937", m.Get("totalIssues"))
	}
}

func TestDeltas(t *testing.T) {
	before := New("", map[string]float64{"lint": 10, "type": 5})
	after := New("", map[string]float64{"lint": 4, "type": 7, "security": 2})

	d := Deltas(before, after)
	want := map[string]float64{"lint": 6, "type": -2, "security": -2}
	for k, v := range want {
		if d[k] != v {
			t.Errorf("delta[%s] = %v, want %v", k, d[k], v)
		}
	}
	if len(d) != len(want) {
		t.Errorf("got %d deltas, want %d", len(d), len(want))
	}
}

func TestImprovement(t *testing.T) {
	before := New("", map[string]float64{"lint": 10})
	after := New("", map[string]float64{"lint": 5})
	if got := Improvement(before, after); got != 0.5 {
		t.Errorf("Improvement() = %v, want 0.5", got)
	}
	if got := Improvement(New("", nil), after); got != 0 {
		t.Errorf("Improvement() with empty baseline = %v, want 0", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]float64
		wantErr bool
	}{
		{name: "flat", input: `{"lint":3,"type":4}`, want: map[string]float64{"lint": 3, "type": 4}},
		{name: "wrapped", input: `{"categories":{"lint":1},"totalIssues":1}`, want: map[string]float64{"lint": 1}},
		{name: "nested count", input: `{"security":{"count":9}}`, want: map[string]float64{"security": 9}},
		{name: "ignores strings", input: `{"lint":2,"tool":"eslint"}`, want: map[string]float64{"lint": 2}},
		{name: "not json", input: `nope`, wantErr: true},
		{name: "no numbers", input: `{"tool":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse("/repo", []byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			for k, v := range tt.want {
				if m.Get(k) != v {
					t.Errorf("%s = %v, want %v", k, m.Get(k), v)
				}
			}
			if len(m.Categories) != len(tt.want) {
				t.Errorf("categories = %v, want %v", m.Categories, tt.want)
			}
		})
	}
}

func TestCommandObserver(t *testing.T) {
	dir := t.TempDir()

	t.Run("success", func(t *testing.T) {
		o := NewCommandObserver(`echo '{"lint":2,"security":1}'`, 5*time.Second)
		m, err := o.Observe(context.Background(), dir)
		if err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
		if m.TotalIssues != 3 || m.TargetDir != dir {
			t.Errorf("Observe() = %+v", m)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		o := NewCommandObserver("echo oops >&2; exit 2", 5*time.Second)
		_, err := o.Observe(context.Background(), dir)
		if err == nil || !strings.Contains(err.Error(), "exited 2") {
			t.Errorf("Observe() error = %v, want exit code", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		o := NewCommandObserver("sleep 10", 100*time.Millisecond)
		_, err := o.Observe(context.Background(), dir)
		if err == nil || !strings.Contains(err.Error(), "timed out") {
			t.Errorf("Observe() error = %v, want timeout", err)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := NewCommandObserver(" ", 0).Observe(context.Background(), dir)
		if !errors.Is(err, ErrNoCommand) {
			t.Errorf("Observe() error = %v, want ErrNoCommand", err)
		}
	})
}
