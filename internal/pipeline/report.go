package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
)

// ReportHeader opens every run report.
const ReportHeader = "تقرير نتائج التنسيق"

const (
	reportSeparator = "====================="
	notAvailableAr  = "غير متاح"
)

// ReportFileName returns the report file name for a run finished at t.
func ReportFileName(t time.Time) string {
	return fmt.Sprintf("orchestration-result-%d.txt", t.UnixMilli())
}

// FormatReport renders the human-readable run report.
func FormatReport(res *orchestrator.Result) string {
	var b strings.Builder

	score, rating := notAvailableAr, notAvailableAr
	if res.Metadata.OverallScore != nil {
		score = strconv.FormatFloat(*res.Metadata.OverallScore, 'f', -1, 64)
	}
	if res.Metadata.OverallRating != "" {
		rating = res.Metadata.OverallRating
	}
	status := "فشل"
	if res.Success {
		status = "نجح"
	}

	fmt.Fprintln(&b, ReportHeader)
	fmt.Fprintln(&b, reportSeparator)
	fmt.Fprintf(&b, "تاريخ البدء: %s\n", res.Metadata.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "تاريخ الانتهاء: %s\n", res.Metadata.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "وقت التنفيذ الكلي: %dms\n", res.Metadata.TotalDuration.Milliseconds())
	fmt.Fprintf(&b, "المحطات المكتملة: %d\n", res.Metadata.StationsCompleted)
	fmt.Fprintf(&b, "المحطات الفاشلة: %d\n", res.Metadata.StationsFailed)
	fmt.Fprintf(&b, "النتيجة الإجمالية: %s\n", score)
	fmt.Fprintf(&b, "التصنيف الإجمالي: %s\n", rating)
	fmt.Fprintf(&b, "الحالة: %s\n", status)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "سجل التقدم:")
	for _, e := range res.ProgressLog {
		fmt.Fprintf(&b, "- المحطة %d (%s): %s - المدة: %dms\n", e.StationNumber, e.StationName, e.Status, e.Duration.Milliseconds())
	}

	if len(res.Errors) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "الأخطاء:")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "- المحطة %d: %s (%s)\n", e.Station, e.Error, e.Timestamp.Format(time.RFC3339))
		}
	}

	return strings.TrimSpace(b.String()) + "\n"
}

// saveReport writes the report into the output directory. Failures are
// logged and swallowed; the returned path is empty when nothing was written.
func (p *Pipeline) saveReport(res *orchestrator.Result) string {
	path := filepath.Join(p.cfg.OutputDir, ReportFileName(p.now()))
	if err := os.WriteFile(path, []byte(FormatReport(res)), 0o644); err != nil {
		p.logger.WithError(err).Error("failed to save orchestration report", "path", path)
		return ""
	}
	p.logger.Info("orchestration report saved", "path", path)
	return path
}
