package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/provisor-io/provisor/internal/ir"
)

// ErrRunNotFound is returned by Load for an unknown run ID.
var ErrRunNotFound = fmt.Errorf("run not found")

// Store persists one JSON document per run under a directory. Files are
// pretty-printed so an operator can inspect a failed run directly.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads the persisted run for runID.
func (s *Store) Load(runID string) (*ir.Run, error) {
	raw, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}

	var run ir.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run %s: %w", runID, err)
	}
	return &run, nil
}

// Save writes the run atomically: the document is written to a temp file in
// the same directory and renamed over the previous version, so a reader
// never observes a torn record and a crash leaves the last fully recorded
// state intact.
func (s *Store) Save(run *ir.Run) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+run.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.runPath(run.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Append records an outcome transition and persists the whole run. The full
// atomic rewrite doubles as the incremental durability point between step
// transitions.
func (s *Store) Append(run *ir.Run, outcome *ir.StepOutcome) error {
	for i, o := range run.Outcomes {
		if o.Step == outcome.Step {
			run.Outcomes[i] = outcome
			return s.Save(run)
		}
	}
	run.Outcomes = append(run.Outcomes, outcome)
	return s.Save(run)
}

// List returns all persisted runs, newest first.
func (s *Store) List() ([]*ir.Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var runs []*ir.Run
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		run, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
