// Package progress renders station progress of an analysis run on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

// Indicator tracks station attempts reported by the orchestrator and renders
// a progress line, or one line per attempt in CI environments.
type Indicator struct {
	writer      io.Writer
	total       int
	now         func() time.Time
	startTime   time.Time
	mu          sync.Mutex
	stations    map[station.Key]orchestrator.ProgressEntry
	order       []station.Key
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once // Ensures Stop() is only called once
	isCI        bool
}

// Config holds configuration for progress indicator
type Config struct {
	Writer io.Writer
	// Total is the number of stations selected for the run
	Total       int
	ShowSpinner bool
	IsCI        bool // Set to true in CI/CD environments to disable fancy output
	Now         func() time.Time
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a new progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Auto-detect CI environment
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}

	return &Indicator{
		writer:      cfg.Writer,
		total:       cfg.Total,
		now:         cfg.Now,
		startTime:   cfg.Now(),
		stations:    make(map[station.Key]orchestrator.ProgressEntry),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
	}
}

// Start begins the progress indicator display
func (p *Indicator) Start() {
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop stops the progress indicator
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		if p.showSpinner {
			close(p.stopChan)
			// Clear spinner line
			p.mu.Lock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 80))
			p.mu.Unlock()
		}
	})
}

func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderProgress()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

// Observe records one station attempt. It has the signature expected by
// pipeline.WithProgress.
func (p *Indicator) Observe(entry orchestrator.ProgressEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, seen := p.stations[entry.StationKey]; !seen {
		p.order = append(p.order, entry.StationKey)
	}
	p.stations[entry.StationKey] = entry

	if p.isCI {
		p.printAttempt(entry)
		return
	}
	if !p.showSpinner {
		p.renderProgress()
	}
}

// Progress returns the share of selected stations that reached a final
// status, between 0 and 1.
func (p *Indicator) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress()
}

func (p *Indicator) progress() float64 {
	if p.total <= 0 {
		return 0
	}
	done := len(p.stations)
	if done > p.total {
		done = p.total
	}
	return float64(done) / float64(p.total)
}

func (p *Indicator) counts() (completed, failed int) {
	for _, e := range p.stations {
		if e.Status == orchestrator.ProgressCompleted {
			completed++
		} else {
			failed++
		}
	}
	return completed, failed
}

// renderProgress renders the current progress line
func (p *Indicator) renderProgress() {
	progress := p.progress()
	completed, failed := p.counts()
	elapsed := p.now().Sub(p.startTime)

	var eta string
	if progress > 0 && progress < 1.0 {
		totalEstimated := time.Duration(float64(elapsed) / progress)
		eta = fmt.Sprintf(" | ETA: %s", formatDuration(totalEstimated-elapsed))
	}

	barWidth := 30
	filled := int(float64(barWidth) * progress)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	prefix := ""
	if p.showSpinner {
		prefix = spinnerFrames[p.spinnerIdx] + " "
	}

	fmt.Fprintf(p.writer, "\r%s[%s] %.1f%% | %d/%d stations | ✓ %d | ✗ %d | %s%s",
		prefix,
		bar,
		progress*100,
		completed+failed,
		p.total,
		completed,
		failed,
		formatDuration(elapsed),
		eta,
	)
}

// printAttempt prints one attempt in CI-friendly format
func (p *Indicator) printAttempt(e orchestrator.ProgressEntry) {
	symbol := "⟲"
	switch e.Status {
	case orchestrator.ProgressCompleted:
		symbol = "✓"
	case orchestrator.ProgressFailed:
		symbol = "✗"
	}

	msg := fmt.Sprintf("%s %s %s [%s] attempt %d (%s)", symbol, e.StationKey, e.StationName, e.Status, e.Attempt, formatDuration(e.Duration))
	if e.Error != "" {
		msg += " - " + e.Error
	}
	fmt.Fprintln(p.writer, msg)
}

// PrintSummary prints the final per-station summary
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed, failed := p.counts()
	elapsed := p.now().Sub(p.startTime)

	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(p.writer, "Analysis Summary")
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(p.writer, "Stations:        %d\n", p.total)
	fmt.Fprintf(p.writer, "Completed:       %d ✓\n", completed)
	fmt.Fprintf(p.writer, "Failed:          %d ✗\n", failed)
	if completed+failed > 0 {
		fmt.Fprintf(p.writer, "Success Rate:    %.1f%%\n", float64(completed)/float64(completed+failed)*100)
	}
	fmt.Fprintf(p.writer, "Total Time:      %s\n", formatDuration(elapsed))
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")

	if failed == 0 {
		return
	}
	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, "Failed Stations:")
	for _, key := range p.order {
		e := p.stations[key]
		if e.Status == orchestrator.ProgressCompleted {
			continue
		}
		fmt.Fprintf(p.writer, "  ✗ %s (%s) after %d attempt(s)", key, e.StationName, e.Attempt)
		if e.Error != "" {
			fmt.Fprintf(p.writer, " - %s", e.Error)
		}
		fmt.Fprintln(p.writer)
	}
}

// PrintResumeInfo prints what a checkpoint already holds before resuming it
func (p *Indicator) PrintResumeInfo(state *checkpoint.State) {
	if state == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := len(state.Completed())
	failed := len(state.Failed())
	pending := p.total - completed
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "Resuming: %s (%s)\n", state.RunID, state.ProjectName)
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "  Restored:   %d stations ✓\n", completed)
	fmt.Fprintf(p.writer, "  Pending:    %d stations ⟲\n", pending)
	fmt.Fprintf(p.writer, "  Failed:     %d stations ✗ (will rerun)\n", failed)
	fmt.Fprintf(p.writer, "  Progress:   %.1f%%\n", state.Progress(p.total)*100)
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintln(p.writer)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
