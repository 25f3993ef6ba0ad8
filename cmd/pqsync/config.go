package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/config"
	"github.com/pqsync/pqsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maintenance",
	Short:   "Show and change settings",
	Long: `Show and change pqsync settings.

Settings come from the config file, PQSYNC_* environment variables
(PQSYNC_SYNC_DEBOUNCEMS=0) and command-line flags, in increasing priority.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, err := app.store.Render(format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting and save it to the config file",
	Long: fmt.Sprintf(`Change a setting and save it to the config file.

Example:
  pqsync config set backup.maxFiles 10

Environment variables use the %s_ prefix with dots replaced by
underscores and still take priority over the file.`, config.EnvPrefix),
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.store.SetString(args[0], args[1]); err != nil {
			return err
		}
		if err := app.store.Save(); err != nil {
			return err
		}
		app.host.Notify(ui.Info, fmt.Sprintf("Set %s = %s in %s", args[0], args[1], app.store.Path()))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), app.store.Path())
	},
}

func init() {
	configShowCmd.Flags().String("format", "yaml", "output format: yaml or toml")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
