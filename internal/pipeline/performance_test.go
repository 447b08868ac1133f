package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/station"
)

func entry(n, attempt int, status orchestrator.ProgressStatus, d time.Duration) orchestrator.ProgressEntry {
	return orchestrator.ProgressEntry{
		StationNumber: n,
		StationKey:    station.KeyFor(n),
		StationName:   "Station",
		Status:        status,
		Attempt:       attempt,
		Duration:      d,
	}
}

func TestComputePerformance(t *testing.T) {
	tests := []struct {
		name string
		res  *orchestrator.Result
		want PerformanceMetrics
	}{
		{
			name: "three completed stations",
			res: &orchestrator.Result{
				Metadata: orchestrator.Metadata{StationsCompleted: 3},
				ProgressLog: []orchestrator.ProgressEntry{
					entry(1, 1, orchestrator.ProgressCompleted, 100*time.Millisecond),
					entry(2, 1, orchestrator.ProgressCompleted, 200*time.Millisecond),
					entry(3, 1, orchestrator.ProgressCompleted, 300*time.Millisecond),
				},
			},
			want: PerformanceMetrics{
				AverageStationTime: 200 * time.Millisecond,
				SlowestStation:     StationTiming{Number: 3, Name: "Station", Duration: 300 * time.Millisecond},
				FastestStation:     StationTiming{Number: 1, Name: "Station", Duration: 100 * time.Millisecond},
				SuccessRate:        100,
			},
		},
		{
			name: "retries and a failed station",
			res: &orchestrator.Result{
				Metadata: orchestrator.Metadata{StationsCompleted: 2, StationsFailed: 1},
				ProgressLog: []orchestrator.ProgressEntry{
					entry(1, 1, orchestrator.ProgressFailed, 50*time.Millisecond),
					entry(1, 2, orchestrator.ProgressCompleted, 400*time.Millisecond),
					entry(2, 1, orchestrator.ProgressFailed, 10*time.Millisecond),
					entry(2, 2, orchestrator.ProgressFailed, 10*time.Millisecond),
					entry(2, 3, orchestrator.ProgressFailed, 10*time.Millisecond),
					entry(3, 1, orchestrator.ProgressCompleted, 200*time.Millisecond),
				},
			},
			want: PerformanceMetrics{
				AverageStationTime: 300 * time.Millisecond,
				SlowestStation:     StationTiming{Number: 1, Name: "Station", Duration: 400 * time.Millisecond},
				FastestStation:     StationTiming{Number: 3, Name: "Station", Duration: 200 * time.Millisecond},
				TotalRetries:       3,
				SuccessRate:        66.67,
			},
		},
		{
			name: "nothing completed",
			res: &orchestrator.Result{
				Metadata: orchestrator.Metadata{StationsFailed: 1},
				ProgressLog: []orchestrator.ProgressEntry{
					entry(1, 1, orchestrator.ProgressFailed, 10*time.Millisecond),
					entry(1, 2, orchestrator.ProgressFailed, 10*time.Millisecond),
				},
			},
			want: PerformanceMetrics{
				SlowestStation: StationTiming{Name: NotAvailable},
				FastestStation: StationTiming{Name: NotAvailable},
			},
		},
		{
			name: "nil result",
			want: PerformanceMetrics{
				SlowestStation: StationTiming{Name: NotAvailable},
				FastestStation: StationTiming{Name: NotAvailable},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePerformance(tt.res)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ComputePerformance() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &orchestrator.Result{
		Metadata: orchestrator.Metadata{
			StartedAt:         started,
			FinishedAt:        started.Add(1500 * time.Millisecond),
			TotalDuration:     1500 * time.Millisecond,
			StationsCompleted: 1,
			StationsFailed:    1,
		},
		ProgressLog: []orchestrator.ProgressEntry{
			{StationNumber: 1, StationName: "Text Analysis", Status: orchestrator.ProgressCompleted, Attempt: 1, Duration: 700 * time.Millisecond},
			{StationNumber: 2, StationName: "Conceptual Analysis", Status: orchestrator.ProgressFailed, Attempt: 1, Duration: 800 * time.Millisecond},
		},
		Errors: []orchestrator.ErrorEntry{
			{Station: 2, Error: "model unavailable", Timestamp: started.Add(time.Second)},
		},
	}

	report := FormatReport(res)
	lines := strings.Split(strings.TrimSpace(report), "\n")

	assert.Equal(t, ReportHeader, lines[0])
	assert.Equal(t, "=====================", lines[1])
	assert.Contains(t, report, "تاريخ البدء: 2026-03-01T10:00:00Z")
	assert.Contains(t, report, "وقت التنفيذ الكلي: 1500ms")
	assert.Contains(t, report, "المحطات المكتملة: 1")
	assert.Contains(t, report, "المحطات الفاشلة: 1")
	assert.Contains(t, report, "النتيجة الإجمالية: غير متاح")
	assert.Contains(t, report, "الحالة: فشل")
	assert.Contains(t, report, "- المحطة 1 (Text Analysis): completed - المدة: 700ms")
	assert.Contains(t, report, "- المحطة 2 (Conceptual Analysis): failed - المدة: 800ms")
	assert.Equal(t, "- المحطة 2: model unavailable (2026-03-01T10:00:01Z)", lines[len(lines)-1])

	assert.Less(t, strings.Index(report, "سجل التقدم:"), strings.Index(report, "الأخطاء:"))
}

func TestFormatReportWithScoreAndNoErrors(t *testing.T) {
	score := 82.5
	res := &orchestrator.Result{
		Success: true,
		Metadata: orchestrator.Metadata{
			OverallScore:  &score,
			OverallRating: "Excellent",
		},
	}

	report := FormatReport(res)

	assert.Contains(t, report, "النتيجة الإجمالية: 82.5")
	assert.Contains(t, report, "التصنيف الإجمالي: Excellent")
	assert.Contains(t, report, "الحالة: نجح")
	assert.NotContains(t, report, "الأخطاء:")
}

func TestReportFileName(t *testing.T) {
	ts := time.UnixMilli(1767225600123)
	assert.Equal(t, "orchestration-result-1767225600123.txt", ReportFileName(ts))
}
