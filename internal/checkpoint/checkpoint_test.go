package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

type noteResult struct {
	Key  station.Key `json:"key"`
	Note string      `json:"note"`
}

func (r *noteResult) StationKey() station.Key   { return r.Key }
func (r *noteResult) NarrativeFields() []string { return []string{r.Note} }

func decodeNote(key station.Key, raw []byte) (station.Result, error) {
	var r noteResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func output(n int, status station.Status, note string) *station.Output {
	key := station.KeyFor(n)
	out := &station.Output{Metadata: station.Metadata{
		StationKey:    key,
		StationNumber: n,
		StationName:   "Station",
		Status:        status,
		Duration:      150 * time.Millisecond,
		AgentsUsed:    []string{"summary"},
	}}
	if status == station.StatusFailed {
		out.Metadata.Error = "boom"
		return out
	}
	out.Result = &noteResult{Key: key, Note: note}
	return out
}

func TestNewState(t *testing.T) {
	state := NewState("run-1", "Project", "some screenplay")

	if state.Version != Version {
		t.Errorf("expected version %s, got %s", Version, state.Version)
	}
	if state.RunID != "run-1" {
		t.Errorf("expected run ID run-1, got %s", state.RunID)
	}
	if state.Status != RunRunning {
		t.Errorf("expected status running, got %s", state.Status)
	}
	if state.Stations == nil {
		t.Error("stations map should be initialized")
	}
	if !state.Matches("some screenplay") {
		t.Error("state should match the text it was created for")
	}
	if state.Matches("another screenplay") {
		t.Error("state should not match different text")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("نص المشهد")
	b := Fingerprint("نص المشهد")

	if a != b {
		t.Errorf("fingerprint should be deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
}

func TestRecordAndOutputs(t *testing.T) {
	state := NewState("run-2", "Project", "text")

	if err := state.Record(output(1, station.StatusSuccess, "logline"), 1); err != nil {
		t.Fatalf("record station1: %v", err)
	}
	if err := state.Record(output(2, station.StatusPartial, "pitch"), 2); err != nil {
		t.Fatalf("record station2: %v", err)
	}
	if err := state.Record(output(3, station.StatusFailed, ""), 3); err != nil {
		t.Fatalf("record station3: %v", err)
	}

	outs, err := state.Outputs(decodeNote)
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 usable outputs, got %d", len(outs))
	}

	got := outs["station2"].Result.(*noteResult)
	if got.Note != "pitch" {
		t.Errorf("expected restored note pitch, got %s", got.Note)
	}
	if outs["station2"].Metadata.Status != station.StatusPartial {
		t.Errorf("expected restored status Partial, got %s", outs["station2"].Metadata.Status)
	}
	if state.Stations["station3"].Error != "boom" {
		t.Errorf("expected failed record to keep its error, got %q", state.Stations["station3"].Error)
	}
	if state.Stations["station2"].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", state.Stations["station2"].Attempts)
	}
}

func TestCompletedFailedProgress(t *testing.T) {
	state := NewState("run-3", "Project", "text")
	state.Record(output(4, station.StatusSuccess, "d"), 1)
	state.Record(output(1, station.StatusSuccess, "a"), 1)
	state.Record(output(2, station.StatusFailed, ""), 3)

	completed := state.Completed()
	if len(completed) != 2 || completed[0] != "station1" || completed[1] != "station4" {
		t.Errorf("expected [station1 station4], got %v", completed)
	}

	failed := state.Failed()
	if len(failed) != 1 || failed[0] != "station2" {
		t.Errorf("expected [station2], got %v", failed)
	}

	if p := state.Progress(8); p != 0.25 {
		t.Errorf("expected progress 0.25, got %f", p)
	}
	if p := state.Progress(0); p != 0 {
		t.Errorf("expected progress 0 for zero total, got %f", p)
	}
}

func TestOutputsRejectsCorruptResult(t *testing.T) {
	state := NewState("run-4", "Project", "text")
	state.Stations["station1"] = StationRecord{
		Key:    "station1",
		Number: 1,
		Status: station.StatusSuccess,
		Result: json.RawMessage(`"not an object"`),
	}

	_, err := state.Outputs(decodeNote)
	if err == nil {
		t.Fatal("expected an error for an undecodable result")
	}
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeCheckpointInvalid {
		t.Errorf("expected code %s, got %s", errors.ErrCodeCheckpointInvalid, code)
	}
}

func TestManagerSaveLoad(t *testing.T) {
	manager := NewManager(t.TempDir())

	state := NewState("test-save-load", "Project", "text")
	state.Record(output(1, station.StatusSuccess, "logline"), 1)
	state.SetMetadata("language", "ar")

	if err := manager.Save(state); err != nil {
		t.Fatalf("failed to save state: %v", err)
	}

	loaded, err := manager.Load("test-save-load")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}

	if loaded.RunID != state.RunID {
		t.Errorf("expected run ID %s, got %s", state.RunID, loaded.RunID)
	}
	if loaded.Fingerprint != state.Fingerprint {
		t.Error("fingerprint should survive a round trip")
	}
	if len(loaded.Stations) != 1 {
		t.Errorf("expected 1 station record, got %d", len(loaded.Stations))
	}
	if loaded.Stations["station1"].Metadata.Duration != 150*time.Millisecond {
		t.Errorf("expected duration 150ms, got %s", loaded.Stations["station1"].Metadata.Duration)
	}
	if value, ok := loaded.GetMetadata("language"); !ok || value != "ar" {
		t.Errorf("expected metadata language=ar, got %s (exists: %v)", value, ok)
	}

	outs, err := loaded.Outputs(decodeNote)
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	if outs["station1"].Result.(*noteResult).Note != "logline" {
		t.Error("restored result should carry the saved note")
	}
}

func TestManagerSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir)

	if err := manager.Save(NewState("atomic", "Project", "text")); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "atomic.json" {
		t.Errorf("expected only atomic.json, got %v", entries)
	}
}

func TestManagerSaveRejectsInvalidState(t *testing.T) {
	manager := NewManager(t.TempDir())

	if err := manager.Save(nil); err == nil {
		t.Error("expected error for nil state")
	}
	if err := manager.Save(&State{}); err == nil {
		t.Error("expected error for state without run ID")
	}
}

func TestManagerLoadErrors(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir)

	_, err := manager.Load("missing")
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeCheckpointInvalid {
		t.Errorf("expected %s for a missing checkpoint, got %v", errors.ErrCodeCheckpointInvalid, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = manager.Load("broken")
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeFileUnmarshal {
		t.Errorf("expected %s for invalid JSON, got %v", errors.ErrCodeFileUnmarshal, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "old.json"), []byte(`{"version":"1.0","run_id":"old"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = manager.Load("old")
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeCheckpointInvalid {
		t.Errorf("expected %s for an old format, got %v", errors.ErrCodeCheckpointInvalid, err)
	}
}

func TestManagerExistsDelete(t *testing.T) {
	manager := NewManager(t.TempDir())

	if manager.Exists("run") {
		t.Error("checkpoint should not exist initially")
	}

	if err := manager.Save(NewState("run", "Project", "text")); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if !manager.Exists("run") {
		t.Error("checkpoint should exist after save")
	}

	if err := manager.Delete("run"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if manager.Exists("run") {
		t.Error("checkpoint should not exist after delete")
	}

	if err := manager.Delete("run"); err != nil {
		t.Errorf("deleting a missing checkpoint should not fail: %v", err)
	}
}

func TestManagerList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	manager := NewManager(dir)

	ids, err := manager.List()
	if err != nil {
		t.Fatalf("list on missing dir: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no checkpoints, got %v", ids)
	}

	for _, id := range []string{"run-b", "run-a", "run-c"} {
		if err := manager.Save(NewState(id, "Project", "text")); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err = manager.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"run-a", "run-b", "run-c"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("expected %v, got %v", want, ids)
			break
		}
	}
}
