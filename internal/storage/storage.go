package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"clipstream/internal/models"
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	Likes         map[string]models.Like         `json:"likes"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
	History       map[string]models.HistoryEntry `json:"history"`
}

// Storage is the JSON-file backed repository used in development and tests.
// A single mutex guards the dataset; multi-entity units mutate a clone, persist
// it, and only then swap it in, so a failed persist leaves no partial state.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Likes:         make(map[string]models.Like),
		Subscriptions: make(map[string]models.Subscription),
		History:       make(map[string]models.HistoryEntry),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
	if s.data.Likes == nil {
		s.data.Likes = make(map[string]models.Like)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]models.Subscription)
	}
	if s.data.History == nil {
		s.data.History = make(map[string]models.HistoryEntry)
	}
}

// NewStorage opens (or creates) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()

	return nil
}

// Ping reports whether the backing file is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()

	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for id, video := range src.Videos {
		cloned := video
		if video.Tags != nil {
			cloned.Tags = append([]string(nil), video.Tags...)
		}
		clone.Videos[id] = cloned
	}
	for id, like := range src.Likes {
		clone.Likes[id] = like
	}
	for id, sub := range src.Subscriptions {
		clone.Subscriptions[id] = sub
	}
	for id, entry := range src.History {
		clone.History[id] = entry
	}

	return clone
}
