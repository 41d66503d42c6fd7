package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/campus"
)

// File layout under the run's output directory.
const (
	DirName       = "checkpoint_state"
	WorldFile     = "campus_world.json"
	TaskStateFile = "campus_task_state.json"
)

// ErrNoCheckpoint means neither checkpoint file exists.
var ErrNoCheckpoint = errors.New("no checkpoint")

// TaskState is the orchestrator's carry-over state.
type TaskState struct {
	FailedPrerequisites map[string][]string `json:"failed_prerequisite_tasks"`
	FailureOrder        []string            `json:"failed_prerequisite_order,omitempty"`
	CurrentDay          string              `json:"current_simulation_day"`
}

// State is a loaded checkpoint. Either part is nil when its file is absent.
type State struct {
	World *campus.Snapshot
	Task  *TaskState
}

// Manager reads and writes checkpoints for one output directory.
type Manager struct {
	dir    string
	logger *zap.Logger
}

// NewManager creates a manager rooted at <outputDir>/checkpoint_state.
func NewManager(outputDir string, logger *zap.Logger) *Manager {
	return &Manager{dir: filepath.Join(outputDir, DirName), logger: logger}
}

// Dir returns the checkpoint directory.
func (m *Manager) Dir() string { return m.dir }

// Save writes both files atomically.
func (m *Manager) Save(world campus.Snapshot, ts TaskState) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	wb, err := world.Marshal()
	if err != nil {
		return fmt.Errorf("marshal world: %w", err)
	}
	if ts.FailedPrerequisites == nil {
		ts.FailedPrerequisites = map[string][]string{}
	}
	tb, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task state: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(m.dir, WorldFile), wb); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(m.dir, TaskStateFile), tb); err != nil {
		return err
	}
	m.logger.Debug("checkpoint saved", zap.String("dir", m.dir), zap.String("day", ts.CurrentDay))
	return nil
}

// Load reads whatever checkpoint files exist. It returns ErrNoCheckpoint
// when neither does; a corrupt file is an error.
func (m *Manager) Load() (State, error) {
	var st State

	data, err := readOptional(filepath.Join(m.dir, WorldFile))
	if err != nil {
		return State{}, err
	}
	if data != nil {
		snap, err := campus.UnmarshalSnapshot(data)
		if err != nil {
			return State{}, fmt.Errorf("load %s: %w", WorldFile, err)
		}
		st.World = &snap
	}

	data, err = readOptional(filepath.Join(m.dir, TaskStateFile))
	if err != nil {
		return State{}, err
	}
	if data != nil {
		var ts TaskState
		if err := json.Unmarshal(data, &ts); err != nil {
			return State{}, fmt.Errorf("load %s: %w", TaskStateFile, err)
		}
		st.Task = &ts
	}

	if st.World == nil && st.Task == nil {
		return State{}, ErrNoCheckpoint
	}
	return st, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// writeFileAtomic replaces path with data so readers see either the old or
// the new content, and syncs both file and directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open checkpoint dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint dir: %w", err)
	}
	return nil
}
