package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/checkpoint"
	"github.com/felixgeelhaar/dramascope/internal/pipeline"
	"github.com/felixgeelhaar/dramascope/internal/station"
	"github.com/felixgeelhaar/dramascope/internal/stations"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage run checkpoints for resumable analysis",
	Long: `Manage run checkpoints for resumable analysis.

Every run records the result of each finished station in
<output-dir>/checkpoints. A checkpoint can be resumed over the same text.

Commands:
  list     List all available checkpoints
  show     Show detailed information about a checkpoint
  delete   Delete a checkpoint

To resume a checkpoint, use: dramascope run <file> --resume <run-id>

Examples:
  dramascope checkpoint list
  dramascope checkpoint show 7d0e2f4c-8a1b-4c55-9d1e-3f0a6b2c9e71
  dramascope run screenplay.txt --resume 7d0e2f4c-8a1b-4c55-9d1e-3f0a6b2c9e71`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available checkpoints",
	Long: `List all checkpoints saved in the output directory.

Shows run ID, status, project, start time and station completion.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := checkpointManager()

		runIDs, err := mgr.List()
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runIDs) == 0 {
			fmt.Fprintln(out, "No checkpoints found.")
			return nil
		}

		var states []*checkpoint.State
		for _, id := range runIDs {
			state, err := mgr.Load(id)
			if err != nil {
				current.logger.WithError(err).Debug("skipping unreadable checkpoint", "run_id", id)
				continue
			}
			states = append(states, state)
		}

		// Newest first
		sort.Slice(states, func(i, j int) bool {
			return states[i].StartedAt.After(states[j].StartedAt)
		})

		fmt.Fprintln(out, "Checkpoints:")
		fmt.Fprintln(out)

		for _, st := range states {
			completed := len(st.Completed())
			failed := len(st.Failed())

			fmt.Fprintf(out, "%s %s\n", runStatusIcon(st.Status), st.RunID)
			fmt.Fprintf(out, "   Status:   %s\n", st.Status)
			fmt.Fprintf(out, "   Project:  %s\n", st.ProjectName)
			fmt.Fprintf(out, "   Started:  %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "   Progress: %d/%d stations", completed, stations.Count)
			if failed > 0 {
				fmt.Fprintf(out, " (%d failed)", failed)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out)
		}

		return nil
	},
}

var checkpointShowJSON bool

var checkpointShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show detailed information about a checkpoint",
	Long: `Show detailed information about a specific checkpoint.

Displays run metadata and the recorded status of every station.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := checkpointManager().Load(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if checkpointShowJSON {
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal checkpoint: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Checkpoint: %s\n", state.RunID)
		fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
		fmt.Fprintf(out, "Status:      %s %s\n", runStatusIcon(state.Status), state.Status)
		fmt.Fprintf(out, "Project:     %s\n", state.ProjectName)
		fmt.Fprintf(out, "Started:     %s\n", state.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Updated:     %s\n", state.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Progress:    %.0f%%\n", state.Progress(stations.Count)*100)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Stations:")

		for _, def := range stations.Definitions() {
			rec, ok := state.Stations[def.Key]
			if !ok {
				fmt.Fprintf(out, "  ⏳ %d. %s (pending)\n", def.Number, def.Name)
				continue
			}
			fmt.Fprintf(out, "  %s %d. %s (%s, %d attempt(s))\n",
				stationStatusIcon(rec.Status), def.Number, def.Name, rec.Status, rec.Attempts)
			if rec.Error != "" {
				fmt.Fprintf(out, "     Error: %s\n", rec.Error)
			}
		}

		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete one or more checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := checkpointManager()
		for _, id := range args {
			if !mgr.Exists(id) {
				fmt.Fprintf(cmd.OutOrStdout(), "⚠️  Checkpoint %s not found\n", id)
				continue
			}
			if err := mgr.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted checkpoint %s\n", id)
		}
		return nil
	},
}

func init() {
	checkpointShowCmd.Flags().BoolVar(&checkpointShowJSON, "json", false, "print the checkpoint as JSON")

	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointDeleteCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func checkpointManager() *checkpoint.Manager {
	return checkpoint.NewManager(filepath.Join(outputDir, pipeline.CheckpointDir))
}

func runStatusIcon(s checkpoint.RunStatus) string {
	switch s {
	case checkpoint.RunCompleted:
		return "✅"
	case checkpoint.RunFailed, checkpoint.RunAborted:
		return "✗"
	case checkpoint.RunRunning:
		return "⏳"
	default:
		return "📦"
	}
}

func stationStatusIcon(s station.Status) string {
	switch s {
	case station.StatusSuccess:
		return "✅"
	case station.StatusPartial:
		return "◐"
	default:
		return "✗"
	}
}
