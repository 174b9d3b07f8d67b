package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore persists the whole record store as a single JSON document on
// disk, the Go rendition of the original browser-local store. All access is
// serialised behind a mutex and every write is atomic (temp file + rename),
// so a crash mid-write never leaves a torn document.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// NewFileStore opens (or lazily creates) the store file at path.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FileStore{path: path, logger: logger}, nil
}

// load reads the backing file into a key→raw-document map. Malformed content
// is logged and treated as an empty store: the UI degrades, it never dies.
func (s *FileStore) load() map[string]json.RawMessage {
	state := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("store file unreadable, starting empty")
		}
		return state
	}
	if len(data) == 0 {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("store file malformed, starting empty")
		return make(map[string]json.RawMessage)
	}
	return state
}

// persist writes the state atomically.
func (s *FileStore) persist(state map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".clinicdesk-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

func decodeList(raw json.RawMessage, logger zerolog.Logger, key string) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		logger.Warn().Err(err).Str("collection", key).Msg("collection malformed, treating as empty")
		return nil
	}
	return docs
}

func (s *FileStore) Get(_ context.Context, c Collection) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeList(s.load()[string(c)], s.logger, string(c)), nil
}

func (s *FileStore) Set(_ context.Context, c Collection, docs []json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.load()
	return s.setLocked(state, c, docs)
}

func (s *FileStore) setLocked(state map[string]json.RawMessage, c Collection, docs []json.RawMessage) error {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c, err)
	}
	state[string(c)] = encoded
	return s.persist(state)
}

func (s *FileStore) Has(_ context.Context, c Collection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load()[string(c)]
	return ok, nil
}

func (s *FileStore) GetValue(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.load()[key]
	if !ok {
		return nil, ErrValueNotFound
	}
	return raw, nil
}

func (s *FileStore) SetValue(_ context.Context, key string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.load()
	state[key] = doc
	return s.persist(state)
}

func (s *FileStore) DeleteValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.load()
	if _, ok := state[key]; !ok {
		return nil
	}
	delete(state, key)
	return s.persist(state)
}

// Update runs fn against a snapshot and persists all staged collections in a
// single write, so companion records (signup's patient + user) cannot land
// half-applied.
func (s *FileStore) Update(_ context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.load()
	tx := newTx(func(c Collection) ([]json.RawMessage, error) {
		return decodeList(state[string(c)], s.logger, string(c)), nil
	})
	if err := fn(tx); err != nil {
		return err
	}

	for c, docs := range tx.staged {
		if docs == nil {
			docs = []json.RawMessage{}
		}
		encoded, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", c, err)
		}
		state[string(c)] = encoded
	}
	return s.persist(state)
}

func (s *FileStore) Close() error { return nil }
