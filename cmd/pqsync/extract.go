package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/journal"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

var extractCmd = &cobra.Command{
	Use:     "extract [workbook]",
	GroupID: "sync",
	Short:   "Extract a workbook's Power Query into a .m file",
	Long: `Extract the Power Query M formula of a workbook into
<workbook>_PowerQuery.m in the same folder.

Without an argument, a file picker is shown in an interactive terminal.

Examples:
  pqsync extract Sales.xlsx          # writes Sales.xlsx_PowerQuery.m
  pqsync extract Sales.xlsx --open   # and opens it in the editor`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		open, _ := cmd.Flags().GetBool("open")

		var wb string
		if len(args) == 1 {
			wb = args[0]
		} else {
			picked, err := app.host.PromptOpenFile("Select a workbook to extract", mcode.WorkbookExtensions)
			if err != nil {
				if errors.Is(err, ui.ErrNoInput) {
					return fmt.Errorf("no workbook given: %w", err)
				}
				return err
			}
			wb = picked
		}
		wb, err := filepath.Abs(wb)
		if err != nil {
			return err
		}

		res, err := newSyncer().Extract(cmd.Context(), wb)
		entry := journal.Entry{Op: journal.OpExtract, Outcome: outcome(err), Path: mcode.SidecarPath(wb), Workbook: wb, Error: errString(err)}
		if res != nil {
			entry.Hash = res.Hash
		}
		record(cmd.Context(), entry)

		if errors.Is(err, syncer.ErrNotFound) {
			app.host.Notify(ui.Info, fmt.Sprintf("No Power Query found in %s", filepath.Base(wb)))
			return nil
		}
		if err != nil {
			return err
		}

		app.host.Notify(ui.Info, fmt.Sprintf("Extracted %s -> %s (%s)", filepath.Base(wb), filepath.Base(res.MPath), res.Part))
		if open {
			return app.host.OpenDocument(res.MPath)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().Bool("open", false, "open the .m file after extracting")
	rootCmd.AddCommand(extractCmd)
}
