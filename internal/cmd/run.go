package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/cmd/styles"
	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/orchestrator"
	"github.com/felixgeelhaar/dramascope/internal/pipeline"
	"github.com/felixgeelhaar/dramascope/internal/progress"
	"github.com/felixgeelhaar/dramascope/internal/stations"
	"github.com/felixgeelhaar/dramascope/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <screenplay-file>",
	Short: "Analyze a screenplay through the seven stations",
	Long: `Analyze a screenplay through the seven stations.

The whole sequence runs by default. Use --from, --to and --skip to run part of
it, and --resume to continue an interrupted run over the same text. Stations
whose dependencies are outside the selection run with what earlier stations of
the same run already produced.

A text report is written to the output directory after every run.

Examples:
  dramascope run screenplay.txt
  dramascope run screenplay.txt --title "The Bakery" --language ar
  dramascope run screenplay.txt --from 3 --to 5
  dramascope run screenplay.txt --profile quick --no-uncertainty
  dramascope run screenplay.txt --resume 7d0e2f4c-...`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalysis,
}

var (
	runLanguage   string
	runTitle      string
	runAuthor     string
	runFrom       int
	runTo         int
	runSkip       []int
	runResume     string
	runID         string
	runJSON       bool
	runNoProgress bool
	runTUI        bool
	runOverrides  overrideFlags
)

func init() {
	runCmd.Flags().StringVarP(&runLanguage, "language", "l", string(pipeline.LanguageArabic), "screenplay language (ar, en)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "project title (default: file name)")
	runCmd.Flags().StringVar(&runAuthor, "author", "", "screenplay author")
	runCmd.Flags().IntVar(&runFrom, "from", 0, "first station to run (1-7)")
	runCmd.Flags().IntVar(&runTo, "to", 0, "last station to run (1-7)")
	runCmd.Flags().IntSliceVar(&runSkip, "skip", nil, "stations to skip (e.g. --skip 2,5)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "resume the checkpointed run with this ID")
	runCmd.Flags().StringVar(&runID, "run-id", "", "ID of the new run (default: random UUID)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "disable the progress display")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the interactive station dashboard")
	runOverrides.register(runCmd)

	runCmd.MarkFlagsMutuallyExclusive("resume", "from")
	runCmd.MarkFlagsMutuallyExclusive("resume", "to")
	runCmd.MarkFlagsMutuallyExclusive("resume", "skip")
	runCmd.MarkFlagsMutuallyExclusive("resume", "run-id")

	rootCmd.AddCommand(runCmd)
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read screenplay %s", path), err)
	}

	in := runInput(path, text)

	opts := orchestrator.RunOptions{
		StartFromStation: runFrom,
		EndAtStation:     runTo,
		SkipStations:     runSkip,
		RunID:            runID,
	}

	selected := selectedStations(opts)
	if runResume != "" {
		selected = selectedStations(orchestrator.RunOptions{})
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var indicator *progress.Indicator
	var dashboard *tui.Adapter
	var pipelineOpts []pipeline.Option
	switch {
	case runTUI && !runJSON:
		dashboard = tui.NewAdapter(in.ProjectName(), profileName, selected, cancel, tea.WithOutput(cmd.OutOrStdout()))
		pipelineOpts = append(pipelineOpts, pipeline.WithProgress(dashboard.Observe))
	case !runNoProgress && !runJSON:
		indicator = progress.NewIndicator(progress.Config{
			Writer:      cmd.ErrOrStderr(),
			Total:       len(selected),
			ShowSpinner: true,
		})
		pipelineOpts = append(pipelineOpts, pipeline.WithProgress(indicator.Observe))
	}

	p, err := buildPipeline(cmd, &runOverrides, pipelineOpts...)
	if err != nil {
		return err
	}

	if indicator != nil {
		if runResume != "" && p.Checkpoints() != nil {
			if state, err := p.Checkpoints().Load(runResume); err == nil {
				indicator.PrintResumeInfo(state)
			}
		}
		indicator.Start()
	}
	if dashboard != nil {
		dashboard.Start()
	}

	var res *pipeline.Result
	switch {
	case runResume != "":
		res, err = p.ResumeAnalysis(ctx, in, runResume)
	case runFrom != 0 || runTo != 0 || len(runSkip) > 0 || runID != "":
		res, err = p.RunPartialAnalysis(ctx, in, opts)
	default:
		res, err = p.RunFullAnalysis(ctx, in)
	}

	if indicator != nil {
		indicator.Stop()
		if res != nil {
			indicator.PrintSummary()
		}
	}
	if dashboard != nil {
		var success bool
		var duration time.Duration
		var reportPath string
		if res != nil {
			success = res.Orchestration.Success
			duration = res.Metadata.TotalDuration
			reportPath = res.Metadata.ReportPath
		}
		if tuiErr := dashboard.Finish(success, duration, reportPath, err); tuiErr != nil {
			current.logger.WithError(tuiErr).Warn("dashboard exited with an error")
		}
	}
	if res == nil {
		return err
	}

	if runJSON {
		data, jerr := json.MarshalIndent(res, "", "  ")
		if jerr != nil {
			return fmt.Errorf("failed to marshal result: %w", jerr)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else if dashboard == nil {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Default().RunSummary(res))
	}

	if err != nil {
		return err
	}
	if res.Metadata.StationsFailed > 0 {
		failure := errors.New(errors.ErrCodeStationFailed,
			fmt.Sprintf("%d of %d stations failed", res.Metadata.StationsFailed, res.Metadata.StationsFailed+res.Metadata.StationsCompleted))
		if p.Checkpoints() != nil {
			failure = failure.WithSuggestion(fmt.Sprintf("Rerun the failed stations with: dramascope run %s --resume %s", path, res.Metadata.RunID))
		}
		return failure
	}
	return nil
}

// titleFor returns the explicit title, or the file name without extension.
// runInput builds the pipeline input for the screenplay read from path.
func runInput(path string, text []byte) pipeline.Input {
	return pipeline.Input{
		ScreenplayText: string(text),
		Language:       pipeline.Language(runLanguage),
		Context: &pipeline.Context{
			Title:     titleFor(path, runTitle),
			Author:    runAuthor,
			CreatedAt: time.Now(),
		},
	}
}

func titleFor(path, title string) string {
	if strings.TrimSpace(title) != "" {
		return title
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// selectedStations returns the numbers of the stations a run with opts
// executes. Invalid selections are rejected later by the orchestrator; the
// list only sizes the progress display.
func selectedStations(opts orchestrator.RunOptions) []int {
	from, to := opts.StartFromStation, opts.EndAtStation
	if from == 0 {
		from = 1
	}
	if to == 0 {
		to = stations.Count
	}
	skip := make(map[int]bool, len(opts.SkipStations))
	for _, n := range opts.SkipStations {
		skip[n] = true
	}

	var selected []int
	for n := from; n <= to; n++ {
		if !skip[n] {
			selected = append(selected, n)
		}
	}
	return selected
}
