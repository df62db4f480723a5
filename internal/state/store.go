package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"PreBurstSentinel/internal/model"
)

var (
	// ErrNotFound is returned by Load when no watermark has been persisted yet.
	ErrNotFound = errors.New("watermark not found")
	// ErrCorrupt is returned by Load when the persisted record cannot be decoded.
	ErrCorrupt = errors.New("watermark corrupt")
	// ErrConflict is returned by Save when another writer saved since the record was read.
	ErrConflict = errors.New("watermark modified concurrently")
)

// Store persists the scan watermark. Save is a compare-and-set: it only replaces the record
// when the stored revision equals prev, or when nothing readable is stored.
type Store interface {
	Load(ctx context.Context) (*model.Watermark, error)
	Save(ctx context.Context, w *model.Watermark, prev int64) error
	Close() error
}

// FileStore keeps the watermark as a JSON document on local disk. The revision check covers
// writers in one process; instances sharing a watermark across hosts need the redis backend.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore, making the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	return &FileStore{Path: path}, nil
}

// Load reads the watermark file.
func (s *FileStore) Load(_ context.Context) (*model.Watermark, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		// I/O and permission errors fail startup instead of reinitializing over the record.
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	return decode(data)
}

// Save writes the watermark through a temp file and rename so readers never see a partial file.
func (s *FileStore) Save(_ context.Context, w *model.Watermark, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, err := os.ReadFile(s.Path); err == nil {
		if err := checkRevision(cur, prev); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp watermark: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close watermark: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace watermark: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// checkRevision compares the revision of a stored record with prev. Undecodable records and
// records of another schema version are overwritten.
func checkRevision(stored []byte, prev int64) error {
	var head struct {
		Version  int   `json:"version"`
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(stored, &head); err != nil || head.Version != model.WatermarkVersion {
		return nil
	}
	if head.Revision != prev {
		return fmt.Errorf("%w: stored revision %d, expected %d", ErrConflict, head.Revision, prev)
	}
	return nil
}

func decode(data []byte) (*model.Watermark, error) {
	var w model.Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if w.Version != model.WatermarkVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, w.Version)
	}
	if w.Opportunities == nil {
		w.Opportunities = make(map[string]model.Opportunity)
	}
	return &w, nil
}

// MemoryStore keeps the watermark in process memory. It backs one-off scans that must not
// touch the persisted state.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (*model.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrNotFound
	}
	return decode(s.data)
}

func (s *MemoryStore) Save(_ context.Context, w *model.Watermark, prev int64) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		if err := checkRevision(s.data, prev); err != nil {
			return err
		}
	}
	s.data = data
	return nil
}

func (s *MemoryStore) Close() error { return nil }
