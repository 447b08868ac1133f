package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/dramascope/internal/profiles"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect execution profiles",
	Long: `Inspect execution profiles.

Profiles set the models, retries, pacing and failure policy of a run. The
built-in profiles are default, quick and robust. Profiles of the same name in
~/.dramascope/profiles.yaml and ./dramascope.profiles.yaml override them field
by field, project over user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := profileLoader()
		names, err := loader.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, name := range names {
			marker := "  "
			if name == profileName {
				marker = "* "
			}
			p, err := loader.Load(name)
			if err != nil {
				fmt.Fprintf(out, "%s%-10s ⚠️  %v\n", marker, name, err)
				continue
			}
			fmt.Fprintf(out, "%s%-10s %s\n", marker, name, p.Description)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print the resolved settings of a profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := profileName
		if len(args) == 1 {
			name = args[0]
		}

		p, err := profileLoader().Load(name)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}

func profileLoader() *profiles.Loader {
	loader := profiles.NewLoader()
	if wd, err := os.Getwd(); err == nil {
		loader.SetProjectDir(wd)
	}
	return loader
}
