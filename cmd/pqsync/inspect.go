package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <workbook>",
	GroupID: "maintenance",
	Short:   "Dump a workbook's custom XML parts for troubleshooting",
	Long: `Dump every custom XML part of a workbook as text, plus a debug_info.json
report of all parts, sheets and what the DataMashup locator found.

Use this when extract reports no Power Query or a malformed part.

Output goes to <workbook>_debug_extraction/ unless --out is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		asJSON, _ := cmd.Flags().GetBool("json")

		wb, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if out == "" {
			out = syncer.DefaultInspectDir(wb)
		}

		report, err := newSyncer().Inspect(cmd.Context(), wb, out)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		app.host.Notify(ui.Info, fmt.Sprintf("Wrote %d part(s) and debug_info.json to %s", len(report.CustomXML), out))
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("out", "", "output directory")
	inspectCmd.Flags().Bool("json", false, "print the report as JSON instead of a summary")
	rootCmd.AddCommand(inspectCmd)
}
