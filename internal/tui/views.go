package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// renderMain renders the main view showing progress and status
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("🎭 dramascope"))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Muted.Render("Project: ") + m.styles.Subtitle.Render(m.title))
	b.WriteString("\n")
	if m.profile != "" {
		b.WriteString(m.styles.Muted.Render("Profile: ") + m.styles.Subtitle.Render(m.profile))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderProgressBox())
	b.WriteString("\n\n")

	if m.current >= 0 && m.current < len(m.rows) {
		row := m.rows[m.current]
		label := m.styles.Muted.Render("Current Station: ")
		text := m.styles.Status.Render(fmt.Sprintf("%d. %s", row.number, row.name))
		if row.attempts > 0 && row.state != rowCompleted {
			text += m.styles.Warning.Render(fmt.Sprintf(" (retry after attempt %d)", row.attempts))
		}
		b.WriteString(label + text)
		b.WriteString("\n\n")
	}

	if m.lastError != "" {
		errorBox := m.styles.Border.
			BorderForeground(lipgloss.Color("196")). // Red border
			Render(m.styles.Error.Render("❌ Last error: ") + m.lastError)
		b.WriteString(errorBox)
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderHelpLine())
	return b.String()
}

// renderProgressBox renders the progress statistics box
func (m Model) renderProgressBox() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(m.statusColor())
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s Progress", m.statusIcon())))
	b.WriteString("\n\n")

	b.WriteString(m.renderProgressBar())
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())

	return m.styles.Border.Render(b.String())
}

// renderProgressBar renders an ASCII progress bar
func (m Model) renderProgressBar() string {
	if m.total == 0 {
		return m.styles.Muted.Render("No stations selected")
	}

	barWidth := 40
	filled := int(float64(m.completed) / float64(m.total) * float64(barWidth))

	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
	progressText := fmt.Sprintf(" %d/%d (%.0f%%)", m.completed, m.total, m.progressPercentage())

	return m.styles.Status.Render(bar) + m.styles.Muted.Render(progressText)
}

// renderStats renders execution statistics
func (m Model) renderStats() string {
	pending := m.total - m.completed - m.failed
	if pending < 0 {
		pending = 0
	}

	stats := []string{
		fmt.Sprintf("Completed: %s", m.styles.Success.Render(fmt.Sprintf("%d", m.completed))),
		fmt.Sprintf("Pending:   %s", m.styles.Muted.Render(fmt.Sprintf("%d", pending))),
	}
	if m.failed > 0 {
		stats = append(stats, fmt.Sprintf("Failed:    %s", m.styles.Error.Render(fmt.Sprintf("%d", m.failed))))
	}
	stats = append(stats, fmt.Sprintf("Elapsed:   %s", m.styles.Muted.Render(formatDuration(m.elapsed()))))

	return strings.Join(stats, "\n")
}

// renderStationList renders the station list view
func (m Model) renderStationList() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("📋 Stations"))
	b.WriteString("\n\n")

	for i, row := range m.rows {
		b.WriteString(m.renderStationLine(i, row))
		b.WriteString("\n")
		if m.verboseMode && row.err != "" {
			b.WriteString(m.styles.Muted.Render("    " + row.err))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelpLine())
	return b.String()
}

// renderStationLine renders a single station in the list
func (m Model) renderStationLine(index int, row stationRow) string {
	var icon string
	var style lipgloss.Style
	switch row.state {
	case rowCompleted:
		icon = "✓"
		style = m.styles.Success
	case rowRunning:
		icon = "⟳"
		style = m.styles.Status
	case rowFailed:
		icon = "✗"
		style = m.styles.Error
	case rowSkipped:
		icon = "–"
		style = m.styles.Muted
	default: // Pending
		icon = "○"
		style = m.styles.Muted
	}

	if index == m.current {
		icon = m.styles.Highlighted.Render(fmt.Sprintf(" %s ", icon))
	} else {
		icon = style.Render(icon)
	}

	text := fmt.Sprintf("%d. %s", row.number, row.name)
	if index == m.current {
		text = m.styles.Status.Render(text)
	} else {
		text = style.Render(text)
	}

	line := icon + " " + text
	if row.attempts > 0 {
		line += m.styles.Muted.Render(fmt.Sprintf(" (attempt %d, %s)", row.attempts, row.duration.Round(time.Millisecond)))
	}
	if row.state == rowSkipped {
		line += m.styles.Muted.Render(" (skipped)")
	}
	return line
}

// renderHelp renders the help view
func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("❓ Help"))
	b.WriteString("\n\n")

	for _, binding := range []key.Binding{m.keys.Help, m.keys.Stations, m.keys.Verbose, m.keys.Quit, m.keys.Back} {
		h := binding.Help()
		b.WriteString(m.styles.Key.Render(fmt.Sprintf("%-10s", h.Key)) + " " + m.styles.KeyDesc.Render(h.Desc))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("Completed stations are kept in the checkpoint when you quit early"))
	return b.String()
}

// renderComplete renders the completion screen
func (m Model) renderComplete() string {
	var b strings.Builder

	switch {
	case !m.finished:
		b.WriteString(m.styles.Warning.Render("⏹ Analysis stopped"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Completed: %d/%d stations", m.completed, m.total))
	case m.runErr != "":
		b.WriteString(m.styles.Error.Render("❌ Analysis Interrupted"))
		b.WriteString("\n\n")
		b.WriteString(m.styles.Muted.Render("Error: ") + m.runErr)
	case !m.success:
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("⚠ Analysis finished with %d failed station(s)", m.failed)))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Completed: %d/%d stations\nDuration: %s", m.completed, m.total, formatDuration(m.elapsed())))
	default:
		b.WriteString(m.styles.Success.Render("✅ Analysis Complete!"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("Completed: %d/%d stations\nDuration: %s", m.completed, m.total, formatDuration(m.elapsed())))
	}
	if m.reportPath != "" {
		b.WriteString("\n" + m.styles.Muted.Render("Report: "+m.reportPath))
	}
	b.WriteString("\n")

	return b.String()
}

// renderHelpLine renders the help line at the bottom
func (m Model) renderHelpLine() string {
	helpItems := []string{
		m.styles.Key.Render("?") + " help",
		m.styles.Key.Render("s") + " stations",
		m.styles.Key.Render("v") + " errors",
		m.styles.Key.Render("q") + " quit",
	}
	return m.styles.Help.Render(strings.Join(helpItems, " • "))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
