package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestLayout_Init(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), ".warden")
	l := NewLayout(baseDir)

	if err := l.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	for _, dir := range []string{l.RecipesDir(), l.LedgerDir(), l.UndoDir(), l.PlansDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("Init() did not create directory %s", dir)
		}
	}
}

func TestNewLayout_DefaultBaseDir(t *testing.T) {
	if got := NewLayout("").BaseDir; got != DefaultBaseDir {
		t.Errorf("BaseDir = %q, want %q", got, DefaultBaseDir)
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "r.json")

	if err := WriteJSON(path, record{ID: "a", Count: 2}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var got record
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.ID != "a" || got.Count != 2 {
		t.Errorf("ReadJSON() = %+v", got)
	}

	// Verify no temp files left behind
	files, _ := filepath.Glob(filepath.Join(dir, "nested", ".tmp-*"))
	if len(files) > 0 {
		t.Errorf("Temp files left behind: %v", files)
	}
}

func TestWriteAtomic_FailureKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	if err := WriteFileAtomic(path, []byte("old")); err != nil {
		t.Fatal(err)
	}

	err := WriteAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("WriteAtomic() expected error")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old" {
		t.Errorf("content after failed write = %q, want %q", data, "old")
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var r record
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &r)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadJSON() error = %v, want os.ErrNotExist", err)
	}
}

func TestAppendJSONL_ReadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	for i := 0; i < 3; i++ {
		if err := AppendJSONL(path, record{ID: "r", Count: i}); err != nil {
			t.Fatalf("AppendJSONL() error = %v", err)
		}
	}

	got, err := ReadJSONL[record](path, true)
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadJSONL() returned %d records, want 3", len(got))
	}
	for i, r := range got {
		if r.Count != i {
			t.Errorf("record %d Count = %d, want %d (append order)", i, r.Count, i)
		}
	}
}

func TestReadJSONL_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := "{\"id\":\"a\",\"count\":1}\nnot json\n\n{\"id\":\"b\",\"count\":2}\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	lenient, err := ReadJSONL[record](path, false)
	if err != nil {
		t.Fatalf("lenient ReadJSONL() error = %v", err)
	}
	if len(lenient) != 2 {
		t.Errorf("lenient ReadJSONL() returned %d records, want 2", len(lenient))
	}

	if _, err := ReadJSONL[record](path, true); err == nil {
		t.Error("strict ReadJSONL() expected error for malformed line")
	}
}

func TestReadJSONL_MissingFile(t *testing.T) {
	got, err := ReadJSONL[record](filepath.Join(t.TempDir(), "nope.jsonl"), true)
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestFileLock_TryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.lock")

	first := NewFileLock(path)
	if err := first.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	second := NewFileLock(path)
	if err := second.TryLock(); !errors.Is(err, ErrLocked) {
		t.Errorf("TryLock() while held error = %v, want ErrLocked", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := second.TryLock(); err != nil {
		t.Errorf("TryLock() after release error = %v", err)
	}
	_ = second.Unlock()

	if err := NewFileLock(path).Unlock(); err != nil {
		t.Errorf("Unlock() on unheld lock error = %v", err)
	}
}

func TestWithLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.lock")

	held := NewFileLock(path)
	if err := held.Lock(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- WithLock(path, func() error {
			if err := NewFileLock(path).TryLock(); !errors.Is(err, ErrLocked) {
				return errors.New("lock not held inside WithLock")
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		t.Fatalf("WithLock returned while the lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if err := held.Unlock(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WithLock did not run after the lock was released")
	}

	sentinel := errors.New("boom")
	if err := WithLock(path, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("WithLock() error = %v, want fn's error", err)
	}
	if err := NewFileLock(path).TryLock(); err != nil {
		t.Errorf("lock still held after WithLock: %v", err)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"Security Hardening", "security-hardening"},
		{"typescript-fixer", "typescript-fixer"},
		{"Special!@#$%^&*()Characters", "special-characters"},
		{"A very long slug that exceeds the maximum allowed length for slugs which is fifty characters", "a-very-long-slug-that-exceeds-the-maximum-allowed"},
	}

	for _, tt := range tests {
		if got := Slug(tt.input); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{path: "src/a.ts", want: filepath.Join(root, "src/a.ts")},
		{path: "./src/../b.ts", want: filepath.Join(root, "b.ts")},
		{path: filepath.Join(root, "c.ts"), want: filepath.Join(root, "c.ts")},
		{path: "../outside", wantErr: true},
		{path: "/etc/passwd", wantErr: true},
		{path: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveWithin(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ResolveWithin(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
