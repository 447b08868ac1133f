package progress

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func attempt(n, a int, status orchestrator.ProgressStatus, errMsg string) orchestrator.ProgressEntry {
	return orchestrator.ProgressEntry{
		StationNumber: n,
		StationKey:    station.KeyFor(n),
		StationName:   "Station",
		Status:        status,
		Attempt:       a,
		Duration:      2 * time.Second,
		Error:         errMsg,
	}
}

func TestNewIndicator(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{
		Writer:      buf,
		Total:       7,
		ShowSpinner: true,
		IsCI:        false,
	})

	if ind == nil {
		t.Fatal("Expected indicator to be created")
	}
	if ind.writer != buf {
		t.Error("Writer not set correctly")
	}
	if ind.total != 7 {
		t.Errorf("Expected total 7, got %d", ind.total)
	}
}

func TestNewIndicatorCIMode(t *testing.T) {
	ind := NewIndicator(Config{
		Writer:      &bytes.Buffer{},
		ShowSpinner: true,
		IsCI:        true,
	})

	if ind.showSpinner {
		t.Error("Spinner should be disabled in CI mode")
	}
	if !ind.isCI {
		t.Error("IsCI should be true")
	}
}

func TestObserveCIPrintsEveryAttempt(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, Total: 2, IsCI: true})

	ind.Observe(attempt(1, 1, orchestrator.ProgressFailed, "model unavailable"))
	ind.Observe(attempt(1, 2, orchestrator.ProgressCompleted, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "✗ station1") || !strings.Contains(lines[0], "model unavailable") {
		t.Errorf("Unexpected failed attempt line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "✓ station1") || !strings.Contains(lines[1], "attempt 2") {
		t.Errorf("Unexpected completed attempt line: %s", lines[1])
	}
}

func TestObserveRendersProgressLine(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{
		Writer: buf,
		Total:  4,
		IsCI:   false,
		Now:    fixedClock(time.Unix(0, 0), 10*time.Second),
	})

	ind.Observe(attempt(1, 1, orchestrator.ProgressCompleted, ""))

	output := buf.String()
	if !strings.Contains(output, "25.0%") {
		t.Errorf("Expected 25.0%% in output, got %q", output)
	}
	if !strings.Contains(output, "1/4 stations") {
		t.Errorf("Expected station count in output, got %q", output)
	}
	if !strings.Contains(output, "ETA") {
		t.Errorf("Expected ETA while stations remain, got %q", output)
	}
}

func TestIndicatorProgress(t *testing.T) {
	ind := NewIndicator(Config{Writer: &bytes.Buffer{}, Total: 4, IsCI: true})

	if got := ind.Progress(); got != 0 {
		t.Errorf("Expected progress 0, got %f", got)
	}

	ind.Observe(attempt(1, 1, orchestrator.ProgressCompleted, ""))
	ind.Observe(attempt(2, 1, orchestrator.ProgressFailed, "boom"))
	ind.Observe(attempt(2, 2, orchestrator.ProgressFailed, "boom"))

	if got := ind.Progress(); got != 0.5 {
		t.Errorf("Expected progress 0.5, got %f", got)
	}

	empty := NewIndicator(Config{Writer: &bytes.Buffer{}, IsCI: true})
	if got := empty.Progress(); got != 0 {
		t.Errorf("Expected progress 0 without total, got %f", got)
	}
}

func TestPrintSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{
		Writer: buf,
		Total:  3,
		IsCI:   true,
		Now:    fixedClock(time.Unix(0, 0), 30*time.Second),
	})

	ind.Observe(attempt(1, 1, orchestrator.ProgressCompleted, ""))
	ind.Observe(attempt(2, 1, orchestrator.ProgressCompleted, ""))
	ind.Observe(attempt(3, 3, orchestrator.ProgressFailed, "parse error"))
	buf.Reset()

	ind.PrintSummary()
	output := buf.String()

	for _, want := range []string{
		"Analysis Summary",
		"Stations:        3",
		"Completed:       2 ✓",
		"Failed:          1 ✗",
		"Success Rate:    66.7%",
		"Failed Stations:",
		"✗ station3 (Station) after 3 attempt(s) - parse error",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, output)
		}
	}
}

func TestPrintResumeInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, Total: 7, IsCI: true})

	state := checkpoint.NewState("run-42", "المخبز", "text")
	state.Stations["station1"] = checkpoint.StationRecord{Key: "station1", Number: 1, Status: station.StatusSuccess, Result: json.RawMessage(`{}`)}
	state.Stations["station2"] = checkpoint.StationRecord{Key: "station2", Number: 2, Status: station.StatusFailed}

	ind.PrintResumeInfo(state)
	output := buf.String()

	for _, want := range []string{
		"Resuming: run-42 (المخبز)",
		"Restored:   1 stations",
		"Pending:    6 stations",
		"Failed:     1 stations",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected resume info to contain %q, got:\n%s", want, output)
		}
	}

	buf.Reset()
	ind.PrintResumeInfo(nil)
	if buf.Len() != 0 {
		t.Error("Nil state should print nothing")
	}
}

func TestStartStop(t *testing.T) {
	buf := &bytes.Buffer{}
	ind := NewIndicator(Config{Writer: buf, Total: 1, ShowSpinner: true})
	if ind.isCI {
		t.Skip("spinner disabled in CI")
	}

	ind.Start()
	time.Sleep(150 * time.Millisecond)
	ind.Stop()
	ind.Stop()
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{5 * time.Second, "5s"},
		{65 * time.Second, "1m5s"},
		{3665 * time.Second, "1h1m5s"},
		{1500 * time.Millisecond, "2s"},
		{0, "0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.duration); got != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, got, tt.expected)
		}
	}
}
