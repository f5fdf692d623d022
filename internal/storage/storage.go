package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"missingrecord/internal/models"
)

// RunStorage persists the history of generated runs to disk.
type RunStorage struct {
	mu      sync.RWMutex
	path    string
	limit   int
	history []models.Run
}

// NewRunStorage creates a storage instance and loads existing history if
// present. limit caps the number of retained runs; zero keeps everything.
func NewRunStorage(path string, limit int) (*RunStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	s := &RunStorage{path: path, limit: limit}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds a run and persists the history.
func (s *RunStorage) Append(run models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = s.trim(append(s.history, run))
	return s.persist()
}

// Latest returns the most recent run if it exists.
func (s *RunStorage) Latest() (models.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return models.Run{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns a copy of the entire history slice.
func (s *RunStorage) History() []models.Run {
	return s.HistoryN(0)
}

// HistoryN returns a copy of the newest n runs, oldest first. n <= 0 returns
// everything.
func (s *RunStorage) HistoryN(n int) []models.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && len(s.history) > n {
		start = len(s.history) - n
	}
	copied := make([]models.Run, len(s.history)-start)
	copy(copied, s.history[start:])
	return copied
}

// Reload rereads the history file, picking up runs written by other processes.
func (s *RunStorage) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// historyVersion is bumped whenever the layout of runs.json changes.
const historyVersion = 1

type historyFile struct {
	Version int          `json:"version"`
	Runs    []models.Run `json:"runs"`
}

// load replaces the in-memory history with the file contents, keeping only
// the newest limit runs.
func (s *RunStorage) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		s.history = []models.Run{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read run history: %w", err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse run history %s: %w", s.path, err)
	}
	if file.Version != historyVersion {
		return fmt.Errorf("run history %s has version %d, want %d", s.path, file.Version, historyVersion)
	}
	s.history = s.trim(file.Runs)
	return nil
}

func (s *RunStorage) trim(runs []models.Run) []models.Run {
	if runs == nil {
		return []models.Run{}
	}
	if s.limit > 0 && len(runs) > s.limit {
		return runs[len(runs)-s.limit:]
	}
	return runs
}

// persist writes the history next to the target and renames it into place so
// a concurrent serve never reads a partial file.
func (s *RunStorage) persist() error {
	body, err := json.MarshalIndent(historyFile{Version: historyVersion, Runs: s.history}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp run history: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp run history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp run history: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace run history: %w", err)
	}
	return nil
}
