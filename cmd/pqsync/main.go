// Command pqsync keeps Power Query M formulas in Excel workbooks in sync
// with editable .m files next to them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pqsync",
	Short: "Sync Power Query formulas between Excel workbooks and .m files",
	Long: `pqsync extracts the Power Query M formula of an Excel workbook into a
<workbook>_PowerQuery.m file next to it, and writes edits to that file back
into the workbook, either on demand or continuously with "pqsync watch".

Every write is prepared in memory first and preceded by a backup, so a
failed write can be rolled back.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { teardown() },
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./pqsync.yaml or the user config directory)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("log-file", "", "also write logs to this file (rotated)")
	flags.Bool("no-input", false, "never prompt; every question takes its default answer")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		teardown()
		os.Exit(1)
	}
}
