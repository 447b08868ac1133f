package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/log"
	"github.com/felixgeelhaar/dramascope/internal/pipeline"
	"github.com/felixgeelhaar/dramascope/internal/profiles"
)

// Global flags shared by every subcommand
var (
	logLevel     = log.LevelWarn
	logFormat    = log.FormatText
	outputDir    string
	profileName  string
	apiKey       string
	otlpEndpoint string
	metricsAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "dramascope",
	Short: "Seven-station dramatic analysis of screenplays",
	Long: `dramascope runs a screenplay through seven analysis stations: text analysis,
conceptual analysis, the conflict network, efficiency metrics, dynamic and
stylistic analysis, diagnostics, and a final scored report.

Each station calls a generative model; runs are paced, retried, checkpointed
and can be resumed after an interruption.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}
		current = rt
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeRuntime(context.WithoutCancel(cmd.Context()))
	},
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on interrupt.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		// PostRun is skipped when RunE fails
		_ = closeRuntime(context.WithoutCancel(ctx))
	}
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Var(&logLevel, "log-level", "log level (debug, info, warn, error)")
	pf.Var(&logFormat, "log-format", "log format (text, json)")
	pf.StringVarP(&outputDir, "output-dir", "o", pipeline.DefaultOutputDir, "directory for reports and checkpoints")
	pf.StringVarP(&profileName, "profile", "p", profiles.DefaultProfile, "execution profile (default, quick, robust or a custom profile)")
	pf.StringVar(&apiKey, "api-key", os.Getenv("GEMINI_API_KEY"), "generative model API key (default $GEMINI_API_KEY)")
	pf.StringVar(&otlpEndpoint, "otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "OTLP/HTTP collector endpoint; tracing is off when empty")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
}
