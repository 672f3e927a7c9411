package composer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists one draft per key. Load returns (nil, nil) when no entry
// exists; Save replaces the whole entry; Delete is idempotent.
type Store interface {
	Load(key string) (*Draft, error)
	Save(key string, draft *Draft) error
	Delete(key string) error
}

// FileStore keeps drafts as JSON files in a directory, one file per key
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create draft dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Load(key string) (*Draft, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft %s: %w", key, err)
	}

	var draft Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		// A corrupt entry is as good as no entry; it will be rewritten
		// on the next save.
		return nil, nil
	}
	return &draft, nil
}

func (s *FileStore) Save(key string, draft *Draft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write draft %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("save draft %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and as a fallback when
// no state directory is writable
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]Draft)}
}

func (s *MemoryStore) Load(key string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (s *MemoryStore) Save(key string, draft *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[key] = draft.Clone()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
	return nil
}
