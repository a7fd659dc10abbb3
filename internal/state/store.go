package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the on-disk form of a Cluster. Every Attempt field
// round-trips so a resumed run sees exactly what the previous run saw.
type snapshot struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Attempts  []Attempt `json:"attempts"`
}

// Store persists cluster state to a JSON file.
type Store struct {
	Path string
}

// NewStore creates a store writing to the given path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads persisted state. A missing file yields (nil, nil) so callers
// can distinguish "no previous run" from a read failure.
func (s *Store) Load() (*Cluster, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", s.Path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.Path, err)
	}

	c := &Cluster{
		runID:     snap.RunID,
		startedAt: snap.StartedAt,
		counts:    make(map[key]int),
		latest:    make(map[key]int),
	}
	for _, a := range snap.Attempts {
		k := key{a.Node, a.Stage}
		c.history = append(c.history, a)
		if a.Attempt > c.counts[k] {
			c.counts[k] = a.Attempt
		}
		c.latest[k] = len(c.history) - 1
	}
	return c, nil
}

// Save writes the state atomically (temp file plus rename) so a crash
// mid-write never corrupts the previous snapshot.
func (s *Store) Save(c *Cluster) error {
	c.mu.Lock()
	snap := snapshot{
		RunID:     c.runID,
		StartedAt: c.startedAt,
		Attempts:  make([]Attempt, len(c.history)),
	}
	copy(snap.Attempts, c.history)
	c.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".kubeboot-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
