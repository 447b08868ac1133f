package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

// Version is the on-disk format version written by Save.
const Version = "2"

// RunStatus is the lifecycle status of a whole run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// State represents the checkpoint state of one analysis run
type State struct {
	Version     string                        `json:"version"`
	RunID       string                        `json:"run_id"`
	ProjectName string                        `json:"project_name"`
	Fingerprint string                        `json:"fingerprint"`
	StartedAt   time.Time                     `json:"started_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
	Status      RunStatus                     `json:"status"`
	Stations    map[station.Key]StationRecord `json:"stations"`
	Metadata    map[string]string             `json:"metadata,omitempty"`
}

// StationRecord is the persisted terminal state of one station
type StationRecord struct {
	Key         station.Key      `json:"key"`
	Number      int              `json:"number"`
	Name        string           `json:"name"`
	Status      station.Status   `json:"status"`
	Attempts    int              `json:"attempts"`
	CompletedAt time.Time        `json:"completed_at"`
	Error       string           `json:"error,omitempty"`
	Metadata    station.Metadata `json:"metadata"`
	Result      json.RawMessage  `json:"result,omitempty"`
}

// Decoder turns a persisted result back into the station's typed result.
type Decoder func(key station.Key, raw []byte) (station.Result, error)

// Fingerprint returns the BLAKE3 digest of the screenplay text, hex encoded.
// A checkpoint can only be resumed against text with the same fingerprint.
func Fingerprint(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewState creates a new checkpoint state for a run over text
func NewState(runID, projectName, text string) *State {
	now := time.Now()
	return &State{
		Version:     Version,
		RunID:       runID,
		ProjectName: projectName,
		Fingerprint: Fingerprint(text),
		StartedAt:   now,
		UpdatedAt:   now,
		Status:      RunRunning,
		Stations:    make(map[station.Key]StationRecord),
		Metadata:    make(map[string]string),
	}
}

// Matches reports whether the state was created for text.
func (s *State) Matches(text string) bool {
	return s.Fingerprint == Fingerprint(text)
}

// Record stores the terminal output of a station.
func (s *State) Record(out *station.Output, attempts int) error {
	if out == nil {
		return fmt.Errorf("checkpoint: nil station output")
	}
	md := out.Metadata
	rec := StationRecord{
		Key:         md.StationKey,
		Number:      md.StationNumber,
		Name:        md.StationName,
		Status:      md.Status,
		Attempts:    attempts,
		CompletedAt: time.Now(),
		Error:       md.Error,
		Metadata:    md,
	}
	if out.Result != nil {
		raw, err := json.Marshal(out.Result)
		if err != nil {
			return fmt.Errorf("checkpoint: encode %s result: %w", md.StationKey, err)
		}
		rec.Result = raw
	}
	if s.Stations == nil {
		s.Stations = make(map[station.Key]StationRecord)
	}
	s.Stations[md.StationKey] = rec
	s.UpdatedAt = rec.CompletedAt
	return nil
}

// Outputs rebuilds the usable outputs (Success or Partial with a result).
func (s *State) Outputs(decode Decoder) (map[station.Key]*station.Output, error) {
	out := make(map[station.Key]*station.Output)
	for key, rec := range s.Stations {
		if rec.Status == station.StatusFailed || len(rec.Result) == 0 {
			continue
		}
		res, err := decode(key, rec.Result)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCheckpointInvalid,
				fmt.Sprintf("checkpoint %s holds an unreadable %s result", s.RunID, key), err)
		}
		out[key] = &station.Output{Result: res, Metadata: rec.Metadata}
	}
	return out, nil
}

// Completed returns the keys of stations with a usable result, in station order.
func (s *State) Completed() []station.Key {
	return s.keysWhere(func(r StationRecord) bool {
		return r.Status != station.StatusFailed && len(r.Result) > 0
	})
}

// Failed returns the keys of failed stations, in station order.
func (s *State) Failed() []station.Key {
	return s.keysWhere(func(r StationRecord) bool {
		return r.Status == station.StatusFailed
	})
}

func (s *State) keysWhere(keep func(StationRecord) bool) []station.Key {
	var recs []StationRecord
	for _, r := range s.Stations {
		if keep(r) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Number < recs[j].Number })
	keys := make([]station.Key, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	return keys
}

// Progress returns the share of total stations with a usable result (0.0 to 1.0)
func (s *State) Progress(total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return float64(len(s.Completed())) / float64(total)
}

// SetMetadata sets a metadata key-value pair
func (s *State) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
	s.UpdatedAt = time.Now()
}

// GetMetadata retrieves a metadata value
func (s *State) GetMetadata(key string) (string, bool) {
	if s.Metadata == nil {
		return "", false
	}
	value, ok := s.Metadata[key]
	return value, ok
}

// Manager handles checkpoint persistence and recovery
type Manager struct {
	checkpointDir string
}

// NewManager creates a new checkpoint manager rooted at dir
func NewManager(dir string) *Manager {
	return &Manager{checkpointDir: dir}
}

// Dir returns the directory checkpoints are written to.
func (m *Manager) Dir() string {
	return m.checkpointDir
}

func (m *Manager) path(runID string) string {
	return filepath.Join(m.checkpointDir, runID+".json")
}

// Save persists the checkpoint state to disk. The file is replaced atomically.
func (m *Manager) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("checkpoint state is nil")
	}
	if state.RunID == "" {
		return fmt.Errorf("checkpoint state has no run id")
	}

	state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.checkpointDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create checkpoint directory", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}

	tmp, err := os.CreateTemp(m.checkpointDir, state.RunID+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write checkpoint file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write checkpoint file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write checkpoint file", err)
	}
	if err := os.Rename(tmp.Name(), m.path(state.RunID)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write checkpoint file", err)
	}
	return nil
}

// Load reads the checkpoint state from disk
func (m *Manager) Load(runID string) (*State, error) {
	path := m.path(runID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeCheckpointInvalid, fmt.Sprintf("checkpoint not found: %s", runID)).
				WithSuggestion("Run 'dramascope checkpoint list' to see available checkpoints")
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read checkpoint file", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "JSON", err)
	}
	if state.Version != Version {
		return nil, errors.New(errors.ErrCodeCheckpointInvalid,
			fmt.Sprintf("checkpoint %s has format version %q, want %q", runID, state.Version, Version))
	}
	if state.Stations == nil {
		state.Stations = make(map[station.Key]StationRecord)
	}

	return &state, nil
}

// Exists checks if a checkpoint exists for the given run ID
func (m *Manager) Exists(runID string) bool {
	_, err := os.Stat(m.path(runID))
	return err == nil
}

// Delete removes a checkpoint file
func (m *Manager) Delete(runID string) error {
	if err := os.Remove(m.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns all checkpoint run IDs, sorted
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.checkpointDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	runIDs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			runIDs = append(runIDs, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(runIDs)

	return runIDs, nil
}
