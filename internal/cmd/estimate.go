package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/cmd/styles"
	"github.com/felixgeelhaar/dramascope/internal/errors"
	"github.com/felixgeelhaar/dramascope/internal/pipeline"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <screenplay-file>",
	Short: "Estimate how long a full analysis takes",
	Long: `Estimate how long a full analysis of a screenplay takes, with the share of
each station. The estimate grows with the text length and includes the pacing
delays between stations. No model is called.`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

var estimateJSON bool

func init() {
	estimateCmd.Flags().BoolVar(&estimateJSON, "json", false, "print the estimate as JSON")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read screenplay %s", args[0]), err)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(string(text)))
	est := pipeline.EstimateAnalysisTime(length)

	if estimateJSON {
		data, err := json.MarshalIndent(est, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal estimate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), styles.Default().Estimate(length, est))
	return nil
}
