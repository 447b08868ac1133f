// Package tui is the interactive station dashboard shown by "dramascope run --tui".
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/stations"
)

// ViewType represents the current view being displayed
type ViewType int

// View type constants
const (
	// ViewMain is the progress overview
	ViewMain ViewType = iota
	// ViewStations lists every station with its last attempt
	ViewStations
	// ViewHelp is the help screen
	ViewHelp
)

// rowState is the display state of one station.
type rowState int

const (
	rowPending rowState = iota
	rowRunning
	rowCompleted
	rowFailed
	rowSkipped
)

type stationRow struct {
	key      station.Key
	number   int
	name     string
	state    rowState
	attempts int
	duration time.Duration
	err      string
}

// Model represents the dashboard state
type Model struct {
	title   string
	profile string

	rows      []stationRow
	total     int
	completed int
	failed    int
	current   int // index of the running station, -1 when idle
	lastError string
	startTime time.Time
	now       func() time.Time

	// Final state
	finished   bool
	success    bool
	runErr     string
	finalTime  time.Duration
	reportPath string

	currentView ViewType
	verboseMode bool
	width       int
	height      int
	ready       bool
	quitting    bool

	// cancel stops the run when the user quits before it finishes
	cancel  func()
	spinner spinner.Model
	keys    keyMap
	styles  Styles
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Status      lipgloss.Style
	Error       lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Border      lipgloss.Style
	Highlighted lipgloss.Style
	Help        lipgloss.Style
	Key         lipgloss.Style
	KeyDesc     lipgloss.Style
}

// keyMap defines the keyboard shortcuts
type keyMap struct {
	Help     key.Binding
	Stations key.Binding
	Verbose  key.Binding
	Back     key.Binding
	Quit     key.Binding
}

var defaultKeys = keyMap{
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
	Stations: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "toggle station list")),
	Verbose:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "toggle error details")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "return to main view")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "stop the run and quit")),
}

// NewModel creates a dashboard for a run over the selected station numbers;
// stations outside selected are shown as skipped.
func NewModel(title, profile string, selected []int) Model {
	keep := make(map[int]bool, len(selected))
	for _, n := range selected {
		keep[n] = true
	}

	defs := stations.Definitions()
	rows := make([]stationRow, len(defs))
	total, first := 0, -1
	for i, d := range defs {
		rows[i] = stationRow{key: d.Key, number: d.Number, name: d.Name}
		if len(selected) > 0 && !keep[d.Number] {
			rows[i].state = rowSkipped
			continue
		}
		if first < 0 {
			first = i
		}
		total++
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		title:       title,
		profile:     profile,
		rows:        rows,
		total:       total,
		current:     first,
		startTime:   time.Now(),
		now:         time.Now,
		currentView: ViewMain,
		spinner:     sp,
		keys:        defaultKeys,
		styles:      DefaultStyles(),
	}
}

// WithCancel sets the function called when the user quits a running analysis.
func (m Model) WithCancel(cancel func()) Model {
	m.cancel = cancel
	return m
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			Italic(true),
		Status: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")), // Cyan
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")). // Purple
			Padding(1, 2),
		Highlighted: lipgloss.NewStyle().
			Background(lipgloss.Color("63")).  // Purple
			Foreground(lipgloss.Color("230")). // Light yellow
			Bold(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			MarginTop(1),
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")), // Purple
		KeyDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
	}
}

// Init initializes the TUI model (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case AttemptMsg:
		m.recordAttempt(msg.Entry)
		return m, nil

	case RunCompleteMsg:
		m.finished = true
		m.success = msg.Success
		m.finalTime = msg.Duration
		m.reportPath = msg.ReportPath
		if msg.Err != nil {
			m.runErr = msg.Err.Error()
		}
		m.current = -1
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) recordAttempt(e orchestrator.ProgressEntry) {
	idx := e.StationNumber - 1
	if idx < 0 || idx >= len(m.rows) {
		return
	}
	row := &m.rows[idx]
	prev := row.state

	row.attempts = e.Attempt
	row.duration = e.Duration
	row.err = e.Error

	switch e.Status {
	case orchestrator.ProgressCompleted:
		row.state = rowCompleted
		if prev != rowCompleted {
			m.completed++
		}
		if prev == rowFailed {
			m.failed--
		}
		m.current = m.nextPending(idx)
	case orchestrator.ProgressFailed:
		// Stays failed unless a later attempt completes
		row.state = rowFailed
		if prev != rowFailed {
			m.failed++
		}
		if prev == rowCompleted {
			m.completed--
		}
		m.lastError = e.Error
		m.current = idx
	default:
		row.state = rowRunning
		m.current = idx
	}
}

// nextPending returns the index of the first pending row after idx, or -1.
func (m Model) nextPending(idx int) int {
	for i := idx + 1; i < len(m.rows); i++ {
		if m.rows[i].state == rowPending {
			return i
		}
	}
	return -1
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if !m.finished && m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = ViewMain
		} else {
			m.currentView = ViewHelp
		}

	case key.Matches(msg, m.keys.Stations):
		if m.currentView == ViewStations {
			m.currentView = ViewMain
		} else {
			m.currentView = ViewStations
		}

	case key.Matches(msg, m.keys.Verbose):
		m.verboseMode = !m.verboseMode

	case key.Matches(msg, m.keys.Back):
		m.currentView = ViewMain
	}

	return m, nil
}

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return m.renderComplete()
	}
	if !m.ready {
		return "Initializing..."
	}

	switch m.currentView {
	case ViewStations:
		return m.renderStationList()
	case ViewHelp:
		return m.renderHelp()
	default:
		return m.renderMain()
	}
}

// Custom messages for run events

// AttemptMsg carries one station attempt reported by the orchestrator
type AttemptMsg struct {
	Entry orchestrator.ProgressEntry
}

// RunCompleteMsg indicates the analysis has finished
type RunCompleteMsg struct {
	Success    bool
	Duration   time.Duration
	ReportPath string
	Err        error
}

// Helper functions

func (m Model) elapsed() time.Duration {
	if m.finished && m.finalTime > 0 {
		return m.finalTime
	}
	return m.now().Sub(m.startTime)
}

func (m Model) progressPercentage() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total) * 100
}

func (m Model) statusIcon() string {
	if m.failed > 0 {
		return "✗"
	}
	if m.completed == m.total && m.total > 0 {
		return "✓"
	}
	return m.spinner.View()
}

func (m Model) statusColor() lipgloss.TerminalColor {
	if m.failed > 0 {
		return lipgloss.Color("196") // Red
	}
	if m.completed == m.total && m.total > 0 {
		return lipgloss.Color("46") // Green
	}
	return lipgloss.Color("86") // Cyan
}
