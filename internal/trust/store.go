package trust

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/boshu2/warden/internal/storage"
)

// FileStore keeps all records in a single JSON array file. Every call reads
// the file again, so records written by another process are always seen;
// writers serialize through the cycle lock.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is not read until first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (map[string]Record, error) {
	var list []Record
	err := storage.ReadJSON(s.path, &list)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load trust store: %w", err)
	}
	records := make(map[string]Record, len(list))
	for _, r := range list {
		if r.ID == "" {
			continue
		}
		records[r.ID] = r
	}
	return records, nil
}

// Get implements Store.
func (s *FileStore) Get(id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	if r, ok := records[id]; ok {
		return r, true, nil
	}
	return NewRecord(id), false, nil
}

// Put implements Store.
func (s *FileStore) Put(rec Record) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	records[rec.ID] = rec
	return s.flush(records)
}

// Delete implements Store.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return ErrNotFound
	}
	delete(records, id)
	return s.flush(records)
}

// All implements Store. Records are sorted by id.
func (s *FileStore) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return sortedRecords(records), nil
}

func (s *FileStore) flush(records map[string]Record) error {
	if err := storage.WriteJSON(s.path, sortedRecords(records)); err != nil {
		return fmt.Errorf("write trust store: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemStore returns an empty MemStore seeded with recs.
func NewMemStore(recs ...Record) *MemStore {
	m := &MemStore{records: make(map[string]Record)}
	for _, r := range recs {
		m.records[r.ID] = r
	}
	return m
}

func (m *MemStore) Get(id string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r, true, nil
	}
	return NewRecord(id), false, nil
}

func (m *MemStore) Put(rec Record) error {
	if rec.ID == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *MemStore) All() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.records), nil
}

func (m *MemStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func sortedRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemStore)(nil)
)
