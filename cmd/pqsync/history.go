package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:     "history [file]",
	GroupID: "maintenance",
	Short:   "Show recent extracts, syncs and restores",
	Long: `Show the sync journal, newest first. With a file argument only entries
for that .m file or workbook are shown.

Examples:
  pqsync history
  pqsync history Sales.xlsx --since "1 week ago"
  pqsync history --limit 200 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sinceText, _ := cmd.Flags().GetString("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		j := openJournal()
		if j == nil {
			return errors.New("the sync journal is disabled (journal.path is empty) or could not be opened")
		}

		filter := journal.Filter{Limit: limit}
		if len(args) == 1 {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			filter.Path = path
		}
		if sinceText != "" {
			since, err := parseWhen(sinceText, time.Now())
			if err != nil {
				return err
			}
			filter.Since = since
		}

		entries, err := j.List(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOP\tOUTCOME\tFILE\tDETAIL")
		for _, e := range entries {
			detail := e.Error
			if detail == "" && e.Backup != "" {
				detail = "backup " + filepath.Base(e.Backup)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format("2006-01-02 15:04:05"), e.Op, e.Outcome, filepath.Base(e.Path), detail)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 50, "maximum number of entries")
	historyCmd.Flags().String("since", "", `only show entries after this time, e.g. "yesterday"`)
	historyCmd.Flags().Bool("json", false, "output JSON")
	rootCmd.AddCommand(historyCmd)
}
