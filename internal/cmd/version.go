package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/dramascope/internal/cmd/styles"
	"github.com/felixgeelhaar/dramascope/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the dramascope version. With --verbose, also the git commit, build
date, Go version and platform the binary was built with.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
	// Version needs none of the logging, metrics or tracing setup
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	out := cmd.OutOrStdout()

	if versionJSON {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if versionVerbose {
		st := styles.Default()
		fmt.Fprintln(out, st.Border.Render(st.Title.Render("🎭 dramascope")+"\n"+info.String()))
		return nil
	}

	fmt.Fprintf(out, "dramascope %s\n", info.Version)
	return nil
}
