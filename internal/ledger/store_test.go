package ledger

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boshu2/warden/internal/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "ledger"))
	clock := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestCreate_RunIDAndLatest(t *testing.T) {
	s := newTestStore(t)

	l, err := s.Create("Security Hardening!")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if l.RunID != "20260504-103001.000-security-hardening" {
		t.Errorf("RunID = %q", l.RunID)
	}
	if l.Status != StatusInProgress {
		t.Errorf("Status = %q", l.Status)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest.RunID != l.RunID {
		t.Errorf("Latest() = %q, want %q", latest.RunID, l.RunID)
	}

	l2, err := s.Create("noop")
	if err != nil {
		t.Fatal(err)
	}
	if latest, _ := s.Latest(); latest.RunID != l2.RunID {
		t.Errorf("latest not advanced: %q", latest.RunID)
	}
}

func TestCreate_CollidingIDsGetSuffix(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	a, err := s.Create("r")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create("r")
	if err != nil {
		t.Fatal(err)
	}
	if a.RunID == b.RunID || !strings.HasSuffix(b.RunID, "-2") {
		t.Errorf("run ids = %q, %q", a.RunID, b.RunID)
	}
}

func TestLifecycle(t *testing.T) {
	s := newTestStore(t)
	l, err := s.Create("fixer")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetSnapshot(l.RunID, "snap-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEdit(l.RunID, Edit{Path: "a.ts", DiffSize: 12, Operation: "write_file"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNote(l.RunID, "gates passed"); err != nil {
		t.Fatal(err)
	}

	before := metrics.New("", map[string]float64{"lint": 10})
	after := metrics.New("", map[string]float64{"lint": 4})
	if err := s.Complete(l.RunID, NewSummary(before, after)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := s.Get(l.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Errorf("ledger = %+v", got)
	}
	if got.SnapshotID != "snap-1" || len(got.Edits) != 1 || len(got.Notes) != 1 {
		t.Errorf("ledger contents = %+v", got)
	}
	if math.Abs(got.Metrics.Improvement-0.6) > 1e-9 {
		t.Errorf("Improvement = %v, want 0.6", got.Metrics.Improvement)
	}

	for name, fn := range map[string]func() error{
		"Complete": func() error { return s.Complete(l.RunID, nil) },
		"Fail":     func() error { return s.Fail(l.RunID, "x") },
		"Rollback": func() error { return s.Rollback(l.RunID, "x", nil) },
		"AddEdit":  func() error { return s.AddEdit(l.RunID, Edit{Path: "b"}) },
		"AddNote":  func() error { return s.AddNote(l.RunID, "late") },
	} {
		if err := fn(); !errors.Is(err, ErrAlreadyFinalized) {
			t.Errorf("%s after finalize error = %v, want ErrAlreadyFinalized", name, err)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.AddNote("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddNote() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Latest(); !errors.Is(err, ErrNoLatest) {
		t.Errorf("Latest() error = %v, want ErrNoLatest", err)
	}
}

func TestFailedWriteKeepsPreviousRecord(t *testing.T) {
	s := newTestStore(t)
	l, err := s.Create("fixer")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddNote(l.RunID, "first"); err != nil {
		t.Fatal(err)
	}

	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	// A read-only directory makes the temp file creation fail.
	if err := os.Chmod(s.Dir(), 0500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(s.Dir(), 0700) })

	if err := s.AddNote(l.RunID, "second"); err == nil {
		t.Fatal("AddNote() error = nil on read-only directory")
	}
	got, err := s.Get(l.RunID)
	if err != nil {
		t.Fatalf("previous record unreadable: %v", err)
	}
	if len(got.Notes) != 1 || got.Notes[0] != "first" {
		t.Errorf("Notes = %v, want [first]", got.Notes)
	}
}

func TestListAndStats(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Create("a")
	b, _ := s.Create("b")
	c, _ := s.Create("c")
	_, _ = s.Create("d")

	_ = s.AddEdit(a.RunID, Edit{Path: "x"})
	_ = s.AddEdit(a.RunID, Edit{Path: "y"})
	_ = s.AddEdit(b.RunID, Edit{Path: "z"})

	m0 := metrics.New("", map[string]float64{"lint": 10})
	_ = s.Complete(a.RunID, NewSummary(m0, metrics.New("", map[string]float64{"lint": 5})))
	_ = s.Fail(b.RunID, "step failed")
	_ = s.Rollback(c.RunID, "gates failed", NewSummary(m0, metrics.New("", map[string]float64{"lint": 12})))

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 4 || list[0].RecipeID != "d" || list[3].RecipeID != "a" {
		var ids []string
		for _, l := range list {
			ids = append(ids, l.RecipeID)
		}
		t.Fatalf("List() order = %v, want newest first", ids)
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Total: 4, InProgress: 1, Completed: 1, Failed: 1, RolledBack: 1, TotalEdits: 3, AvgEdits: 0.75}
	want.AvgImprovement = st.AvgImprovement
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}
	if math.Abs(st.AvgImprovement-0.15) > 1e-9 {
		t.Errorf("AvgImprovement = %v, want 0.15", st.AvgImprovement)
	}
}
