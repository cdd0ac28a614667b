package trust

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestLearn_FreshSuccessThenFailure(t *testing.T) {
	l := NewLearner(NewMemStore(), "", nil)

	res, err := l.Learn(Outcome{RecipeID: "r1", Success: true})
	if err != nil {
		t.Fatalf("Learn() error = %v", err)
	}
	if r := res.Record; r.Runs != 1 || r.Success != 1 || r.Trust != 1.0 {
		t.Errorf("after success: %+v, want runs=1 success=1 trust=1.0", r)
	}

	res, err = l.Learn(Outcome{RecipeID: "r1", Success: false})
	if err != nil {
		t.Fatalf("Learn() error = %v", err)
	}
	if r := res.Record; r.Runs != 2 || r.Success != 1 || r.Trust != 0.5 {
		t.Errorf("after failure: %+v, want runs=2 success=1 trust=0.5", r)
	}
}

func TestLearn_TrustIsClampedRatio(t *testing.T) {
	sequences := [][]bool{
		{true, true, false, true},
		{false, false},
		{false, true, false, true, true, false, false, true},
		{true, false, false, true, false, false, true, false, false, false, false},
	}

	for i, seq := range sequences {
		l := NewLearner(NewMemStore(), "", nil)
		succ := 0
		for n, ok := range seq {
			if ok {
				succ++
			}
			res, err := l.Learn(Outcome{RecipeID: "r", Success: ok})
			if err != nil {
				t.Fatalf("seq %d step %d: %v", i, n, err)
			}
			want := Clamp(float64(succ) / float64(n+1))
			if math.Abs(res.Record.Trust-want) > 1e-9 {
				t.Errorf("seq %d step %d: trust = %v, want %v", i, n, res.Record.Trust, want)
			}
			if res.Record.Trust < MinTrust || res.Record.Trust > MaxTrust {
				t.Errorf("seq %d step %d: trust %v out of bounds", i, n, res.Record.Trust)
			}
		}
	}
}

func TestLearn_BlacklistAfterThreeConsecutiveFailures(t *testing.T) {
	l := NewLearner(NewMemStore(), "", nil)

	for i := 0; i < 2; i++ {
		res, _ := l.Learn(Outcome{RecipeID: "bad", Success: false})
		if res.Blacklisted || res.Record.Blacklisted {
			t.Fatalf("blacklisted after %d failures", i+1)
		}
	}

	res, err := l.Learn(Outcome{RecipeID: "bad", Success: false})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Blacklisted || !res.Record.Blacklisted {
		t.Fatalf("expected blacklist after 3 failures: %+v", res)
	}
	if !strings.Contains(res.Message, "consecutive failures") {
		t.Errorf("Message = %q, want consecutive failures wording", res.Message)
	}
}

func TestLearn_SuccessResetsConsecutiveFailures(t *testing.T) {
	l := NewLearner(NewMemStore(), "", nil)
	for _, ok := range []bool{false, false, true, false, false} {
		if _, err := l.Learn(Outcome{RecipeID: "r", Success: ok}); err != nil {
			t.Fatal(err)
		}
	}
	rec, _, _ := l.store.Get("r")
	if rec.Blacklisted {
		t.Error("intervening success should prevent blacklist")
	}
	if rec.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", rec.ConsecutiveFailures)
	}
}

func TestLearn_NoopNotScoredByDefault(t *testing.T) {
	store := NewMemStore()
	historyPath := filepath.Join(t.TempDir(), "history.jsonl")
	l := NewLearner(store, historyPath, nil)

	res, err := l.Learn(Outcome{RecipeID: NoopID, Success: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Scored {
		t.Error("noop should not be scored by default")
	}
	if _, ok, _ := store.Get(NoopID); ok {
		t.Error("noop record should not be created")
	}

	entries, err := LoadHistory(historyPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].RecipeID != NoopID {
		t.Errorf("history = %+v, want one noop entry", entries)
	}

	l.ScoreNoop = true
	res, _ = l.Learn(Outcome{RecipeID: NoopID, Success: true})
	if !res.Scored || res.Record.Runs != 1 {
		t.Errorf("ScoreNoop: %+v", res)
	}
}

func TestLearn_HistoryAppendedForEveryOutcome(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.jsonl")
	l := NewLearner(NewMemStore(), historyPath, nil)

	deltas := map[string]float64{"lint": 3}
	if _, err := l.Learn(Outcome{RecipeID: "r", Success: true, Deltas: deltas, Attestation: "abc"}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Learn(Outcome{RecipeID: "r", Success: false}); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadHistory(historyPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d history entries, want 2", len(entries))
	}
	if entries[0].Attestation != "abc" || entries[0].Deltas["lint"] != 3 {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Success {
		t.Error("second entry should record failure")
	}
}

func TestLearn_EmptyID(t *testing.T) {
	l := NewLearner(NewMemStore(), "", nil)
	if _, err := l.Learn(Outcome{}); !errors.Is(err, ErrEmptyID) {
		t.Errorf("Learn() error = %v, want ErrEmptyID", err)
	}
}

func TestReset(t *testing.T) {
	store := NewMemStore()
	l := NewLearner(store, "", nil)
	for i := 0; i < 3; i++ {
		_, _ = l.Learn(Outcome{RecipeID: "r", Success: false})
	}
	if err := l.Reset("r"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	rec, ok, _ := store.Get("r")
	if ok || rec.Blacklisted || rec.Trust != DefaultTrust {
		t.Errorf("after reset: %+v ok=%v", rec, ok)
	}
	if err := l.Reset("r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Reset() error = %v, want ErrNotFound", err)
	}
}
