package guard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boshu2/warden/internal/storage"
)

func newGuard(t *testing.T, critical ...string) (*Guard, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, ".warden")
	g := New(Config{
		Root:          root,
		GoldenPath:    filepath.Join(base, "golden.json"),
		EvidencePath:  filepath.Join(base, "evidence.jsonl"),
		CriticalFiles: critical,
		Key:           []byte("test-key"),
		Concurrency:   2,
	})
	return g, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRecord_FailedGatesNeverWriteGolden(t *testing.T) {
	g, root := newGuard(t, "package.json")
	writeFile(t, root, "package.json", "{}")

	rep, err := g.Record(context.Background(), Outcome{RunID: "r1", Decision: "fixer", GatesPassed: false})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Golden != nil {
		t.Error("golden written for failed gates")
	}
	if _, err := g.Golden(); !errors.Is(err, ErrNoGolden) {
		t.Errorf("Golden() error = %v, want ErrNoGolden", err)
	}
	entries, err := g.Evidence()
	if err != nil || len(entries) != 1 {
		t.Fatalf("Evidence() = %v, %v; want one entry", entries, err)
	}
}

func TestRecord_PassingGatesOverwriteGolden(t *testing.T) {
	g, root := newGuard(t, "package.json", "tsconfig.json", "missing.json")
	writeFile(t, root, "package.json", `{"name":"a"}`)
	writeFile(t, root, "tsconfig.json", `{}`)

	first, err := g.Record(context.Background(), Outcome{RunID: "r1", Decision: "fixer", GatesPassed: true})
	if err != nil {
		t.Fatal(err)
	}
	if first.Golden == nil || len(first.Golden.Files) != 3 {
		t.Fatalf("golden = %+v", first.Golden)
	}

	writeFile(t, root, "package.json", `{"name":"b"}`)
	if _, err := g.Record(context.Background(), Outcome{RunID: "r2", Decision: "fixer", GatesPassed: true}); err != nil {
		t.Fatal(err)
	}
	golden, err := g.Golden()
	if err != nil {
		t.Fatal(err)
	}
	if golden.RunID != "r2" {
		t.Errorf("golden run = %q, want r2", golden.RunID)
	}
	if golden.Files[0].Path != "missing.json" || !golden.Files[0].Missing {
		t.Errorf("files not sorted or missing flag lost: %+v", golden.Files)
	}
}

func TestCheckDrift(t *testing.T) {
	g, root := newGuard(t, "a.json", "b.json", "c.json")
	writeFile(t, root, "a.json", "a")
	writeFile(t, root, "b.json", "b")

	if _, err := g.CheckDrift(context.Background()); !errors.Is(err, ErrNoGolden) {
		t.Fatalf("CheckDrift() before golden error = %v", err)
	}
	if _, err := g.WriteGolden(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}

	drifts, err := g.CheckDrift(context.Background())
	if err != nil || len(drifts) != 0 {
		t.Fatalf("CheckDrift() = %v, %v; want none", drifts, err)
	}

	writeFile(t, root, "a.json", "changed")
	if err := os.Remove(filepath.Join(root, "b.json")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "c.json", "new")

	drifts, err = g.CheckDrift(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]DriftStatus{}
	for _, d := range drifts {
		got[d.Path] = d.Status
	}
	want := map[string]DriftStatus{"a.json": DriftModified, "b.json": DriftMissing, "c.json": DriftAdded}
	for p, s := range want {
		if got[p] != s {
			t.Errorf("drift %s = %q, want %q (all %+v)", p, got[p], s, drifts)
		}
	}
}

func TestEvidenceChain(t *testing.T) {
	g, root := newGuard(t)
	writeFile(t, root, "src/a.ts", "x")

	ctx := context.Background()
	for i, o := range []Outcome{
		{RunID: "r1", Decision: "noop", GatesPassed: true},
		{RunID: "r2", Decision: "fixer", Deltas: map[string]float64{"lint": 3, "type": -1}, GatesPassed: false, Paths: []string{"src/a.ts"}},
		{RunID: "r3", Decision: "fixer", Deltas: map[string]float64{"lint": 0.5}, GatesPassed: true},
	} {
		if _, err := g.Record(ctx, o); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	entries, err := g.Evidence()
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].PrevHash != "" || entries[1].PrevHash != entries[0].Hash || entries[2].PrevHash != entries[1].Hash {
		t.Fatalf("entries not chained: %+v", entries)
	}
	if entries[0].ID == entries[1].ID || entries[0].ID == "" {
		t.Errorf("entry ids not unique: %q %q", entries[0].ID, entries[1].ID)
	}

	rep, err := g.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || rep.Entries != 3 || rep.BrokenIndex != -1 || !rep.SignaturesChecked {
		t.Errorf("Verify() = %+v", rep)
	}

	if r := VerifyChain(entries, []byte("other-key")); r.Valid || r.BrokenIndex != 0 || !strings.Contains(r.Message, "signature") {
		t.Errorf("VerifyChain(wrong key) = %+v", r)
	}
	if r := VerifyChain(entries, nil); !r.Valid || r.SignaturesChecked {
		t.Errorf("VerifyChain(no key) = %+v", r)
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	g, _ := newGuard(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := g.Record(context.Background(), Outcome{RunID: id, Decision: "fixer"}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := g.Evidence()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]EvidenceEntry) []EvidenceEntry
		broken int
	}{
		{"flip gate outcome", func(es []EvidenceEntry) []EvidenceEntry { es[1].GatesPassed = true; return es }, 1},
		{"drop middle entry", func(es []EvidenceEntry) []EvidenceEntry { return append(es[:1:1], es[2]) }, 1},
		{"rehash without prev link", func(es []EvidenceEntry) []EvidenceEntry {
			es[2].PrevHash = ""
			es[2].PayloadHash, es[2].Hash, _ = computeHashes(es[2])
			return es
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := append([]EvidenceEntry(nil), entries...)
			r := VerifyChain(tt.mutate(cp), g.cfg.Key)
			if r.Valid || r.BrokenIndex != tt.broken {
				t.Errorf("VerifyChain() = %+v, want broken at %d", r, tt.broken)
			}
		})
	}
}

func TestRecord_RequiresRunIDAndKey(t *testing.T) {
	g, _ := newGuard(t)
	if _, err := g.Record(context.Background(), Outcome{Decision: "noop"}); !errors.Is(err, ErrEmptyRunID) {
		t.Errorf("Record() error = %v, want ErrEmptyRunID", err)
	}
	g.cfg.Key = nil
	if _, err := g.Record(context.Background(), Outcome{RunID: "r", Decision: "noop"}); !errors.Is(err, ErrNoKey) {
		t.Errorf("Record() error = %v, want ErrNoKey", err)
	}
}

func TestHashFiles_RejectsEscapes(t *testing.T) {
	if _, err := HashFiles(context.Background(), t.TempDir(), []string{"../x"}, 1); !errors.Is(err, storage.ErrOutsideRoot) {
		t.Errorf("HashFiles() error = %v, want ErrOutsideRoot", err)
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	k1, err := LoadOrCreateKey(path)
	if err != nil || len(k1) != 32 {
		t.Fatalf("LoadOrCreateKey() = %x, %v", k1, err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, %v", info.Mode().Perm(), err)
	}
	k2, err := LoadOrCreateKey(path)
	if err != nil || string(k1) != string(k2) {
		t.Errorf("second load = %x, %v; want same key", k2, err)
	}

	if err := os.WriteFile(path, []byte("not-hex"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKey(path); err == nil {
		t.Error("LoadOrCreateKey(bad hex) error = nil")
	}
}

func TestReadKey(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadKey(filepath.Join(dir, "missing.key")); !errors.Is(err, ErrNoKey) {
		t.Errorf("ReadKey(missing) err = %v, want ErrNoKey", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing.key")); !os.IsNotExist(err) {
		t.Error("ReadKey created a key file")
	}

	empty := filepath.Join(dir, "empty.key")
	if err := os.WriteFile(empty, []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKey(empty); !errors.Is(err, ErrNoKey) {
		t.Errorf("LoadOrCreateKey(empty) err = %v, want ErrNoKey", err)
	}
}
