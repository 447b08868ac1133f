// Package styles renders the terminal summaries printed by the CLI.
package styles

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/dramascope/internal/pipeline"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

// Styles contains the lipgloss styles used by the CLI output
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Border  lipgloss.Style
}

// Default returns the default styles
func Default() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			Width(18),
		Value: lipgloss.NewStyle().
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
			Padding(0, 1),
	}
}

func (s Styles) row(label, value string) string {
	return s.Label.Render(label) + value
}

// RunSummary renders the outcome of one analysis run.
func (s Styles) RunSummary(res *pipeline.Result) string {
	if res == nil {
		return ""
	}
	meta := res.Metadata
	orch := res.Orchestration

	status := s.Success.Render("✓ success")
	switch {
	case orch != nil && orch.Metadata.Aborted:
		status = s.Error.Render("✗ aborted")
	case meta.StationsFailed > 0:
		status = s.Warning.Render(fmt.Sprintf("⚠ %d station(s) failed", meta.StationsFailed))
	case orch != nil && !orch.Success:
		status = s.Warning.Render("⚠ incomplete")
	}

	lines := []string{
		s.Title.Render("Analysis Summary"),
		s.row("Run", s.Value.Render(meta.RunID)),
		s.row("Status", status),
		s.row("Completed", s.Value.Render(fmt.Sprintf("%d", meta.StationsCompleted))),
		s.row("Failed", s.Value.Render(fmt.Sprintf("%d", meta.StationsFailed))),
	}
	if orch != nil && orch.Metadata.StationsRestored > 0 {
		lines = append(lines, s.row("Restored", s.Value.Render(fmt.Sprintf("%d", orch.Metadata.StationsRestored))))
	}
	lines = append(lines, s.row("Duration", s.Value.Render(meta.TotalDuration.Round(time.Millisecond).String())))

	if orch != nil && orch.Metadata.OverallScore != nil {
		score := fmt.Sprintf("%.1f (%s)", *orch.Metadata.OverallScore, orch.Metadata.OverallRating)
		lines = append(lines, s.row("Overall score", s.Value.Render(score)))
	}

	perf := res.Performance
	lines = append(lines,
		s.row("Success rate", s.Value.Render(fmt.Sprintf("%.2f%%", perf.SuccessRate))),
		s.row("Avg station", s.Value.Render(perf.AverageStationTime.Round(time.Millisecond).String())),
		s.row("Slowest", s.timing(perf.SlowestStation)),
		s.row("Fastest", s.timing(perf.FastestStation)),
		s.row("Retries", s.Value.Render(fmt.Sprintf("%d", perf.TotalRetries))),
	)
	if meta.ReportPath != "" {
		lines = append(lines, s.row("Report", s.Muted.Render(meta.ReportPath)))
	}

	body := strings.Join(lines, "\n")
	if table := s.stationTable(res.Outputs); table != "" {
		body += "\n\n" + table
	}
	return s.Border.Render(body)
}

func (s Styles) timing(t pipeline.StationTiming) string {
	if t.Number == 0 {
		return s.Muted.Render(t.Name)
	}
	return s.Value.Render(fmt.Sprintf("%d %s (%s)", t.Number, t.Name, t.Duration.Round(time.Millisecond)))
}

func (s Styles) stationTable(outputs map[station.Key]*station.Output) string {
	if len(outputs) == 0 {
		return ""
	}
	keys := make([]station.Key, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return outputs[keys[i]].Metadata.StationNumber < outputs[keys[j]].Metadata.StationNumber
	})

	var b strings.Builder
	for i, k := range keys {
		meta := outputs[k].Metadata
		icon := s.Success.Render("✓")
		switch meta.Status {
		case station.StatusPartial:
			icon = s.Warning.Render("◐")
		case station.StatusFailed:
			icon = s.Error.Render("✗")
		}
		fmt.Fprintf(&b, "%s %d. %s %s", icon, meta.StationNumber, meta.StationName,
			s.Muted.Render(meta.Duration.Round(time.Millisecond).String()))
		if i < len(keys)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Estimate renders a duration estimate with its per-station breakdown.
func (s Styles) Estimate(textLength int, est pipeline.Estimate) string {
	lines := []string{
		s.Title.Render("Estimated Analysis Time"),
		s.row("Text length", s.Value.Render(fmt.Sprintf("%d characters", textLength))),
		s.row("Total", s.Value.Render(est.Total.Round(time.Second).String())),
		"",
	}
	for n := 1; n <= len(est.Breakdown); n++ {
		key := station.KeyFor(n)
		lines = append(lines, s.row(string(key), s.Muted.Render(est.Breakdown[key].Round(100*time.Millisecond).String())))
	}
	return s.Border.Render(strings.Join(lines, "\n"))
}

// Health renders a health status.
func (s Styles) Health(h pipeline.HealthStatus) string {
	check := func(ok bool) string {
		if ok {
			return s.Success.Render("✓ healthy")
		}
		return s.Error.Render("✗ unhealthy")
	}
	lines := []string{
		s.Title.Render("Health Check"),
		s.row("Task client", check(h.TaskClientHealthy)),
		s.row("Output dir", check(h.OutputDirectoryHealthy)),
		s.row("Overall", check(h.Healthy)),
	}
	if h.Details != "" {
		lines = append(lines, "", s.Muted.Render(h.Details))
	}
	return s.Border.Render(strings.Join(lines, "\n"))
}
