package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/cmd/styles"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the model backend and the output directory",
	Long: `Check that the model backend answers a trivial request and that the output
directory is writable. Exits with status 6 when either check fails.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

var healthJSON bool

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the health status as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cmd, nil)
	if err != nil {
		return err
	}

	status := p.HealthCheck(cmd.Context())

	if healthJSON {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal health status: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), styles.Default().Health(status))
	}

	if !status.Healthy {
		return fmt.Errorf("pipeline is unhealthy")
	}
	return nil
}
