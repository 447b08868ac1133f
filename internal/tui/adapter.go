package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
)

// Adapter bridges between the pipeline and the dashboard
type Adapter struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// NewAdapter creates a dashboard program. cancel is called when the user
// quits before the run finishes.
func NewAdapter(title, profile string, selected []int, cancel func(), opts ...tea.ProgramOption) *Adapter {
	model := NewModel(title, profile, selected).WithCancel(cancel)
	return &Adapter{
		program: tea.NewProgram(model, opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background
func (a *Adapter) Start() {
	go func() {
		defer close(a.done)
		_, a.err = a.program.Run()
	}()
}

// Observe forwards one station attempt. It has the signature expected by
// pipeline.WithProgress.
func (a *Adapter) Observe(entry orchestrator.ProgressEntry) {
	a.program.Send(AttemptMsg{Entry: entry})
}

// Finish shows the completion screen and waits for the program to exit.
func (a *Adapter) Finish(success bool, duration time.Duration, reportPath string, err error) error {
	a.program.Send(RunCompleteMsg{
		Success:    success,
		Duration:   duration,
		ReportPath: reportPath,
		Err:        err,
	})
	<-a.done
	return a.err
}
