package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/journal"
	"github.com/pqsync/pqsync/internal/ui"
)

var restoreCmd = &cobra.Command{
	Use:     "restore <workbook>",
	GroupID: "sync",
	Short:   "Restore a workbook from its newest backup",
	Long: `Copy a backup over a workbook. Without --backup the newest backup in the
configured backup location is used.

Examples:
  pqsync restore Sales.xlsx
  pqsync restore Sales.xlsx --backup Sales_backup_2025-07-11T10-30-00-000Z.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("backup")

		wb, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if from != "" {
			if from, err = filepath.Abs(from); err != nil {
				return err
			}
		}

		rec, err := newSyncer().Restore(cmd.Context(), wb, from)
		entry := journal.Entry{Op: journal.OpRestore, Outcome: outcome(err), Path: wb, Workbook: wb, Backup: from, Error: errString(err)}
		if rec != nil {
			entry.Backup = rec.Path
		}
		record(cmd.Context(), entry)
		if err != nil {
			return err
		}

		app.host.Notify(ui.Info, fmt.Sprintf("Restored %s from %s", filepath.Base(wb), rec.Path))
		return nil
	},
}

func init() {
	restoreCmd.Flags().String("backup", "", "backup file to restore (default: newest)")
	rootCmd.AddCommand(restoreCmd)
}
