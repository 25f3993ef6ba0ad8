package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/backup"
	"github.com/pqsync/pqsync/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "maintenance",
	Short:   "Create, list and prune workbook backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <workbook>",
	Short: "Back up a workbook now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wb, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		policy := app.settings.Backup.Policy

		rec, err := backup.Create(wb, policy, time.Now())
		if err != nil {
			return err
		}
		if _, err := backup.Prune(wb, policy, app.settings.Backup.MaxFiles, app.logger); err != nil {
			app.host.Notify(ui.Warning, fmt.Sprintf("Some old backups could not be removed: %v", err))
		}
		app.host.Notify(ui.Info, "Created "+rec.Path)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list <workbook>",
	Short: "List a workbook's backups, newest first",
	Long: `List a workbook's backups, newest first.

--since accepts absolute or relative times:
  pqsync backup list Sales.xlsx --since "2 days ago"
  pqsync backup list Sales.xlsx --since yesterday`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceText, _ := cmd.Flags().GetString("since")

		wb, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		var since time.Time
		if sinceText != "" {
			if since, err = parseWhen(sinceText, time.Now()); err != nil {
				return err
			}
		}

		records, err := backup.List(wb, app.settings.Backup.Policy)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TAKEN\tPATH")
		shown := 0
		for _, rec := range records {
			if !since.IsZero() && rec.Time.Before(since) {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", rec.Time.Local().Format("2006-01-02 15:04:05"), rec.Path)
			shown++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if shown == 0 {
			app.host.Notify(ui.Info, "No backups found")
		}
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune <workbook>",
	Short: "Delete all but the newest backups of a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := app.settings.Backup.MaxFiles
		if cmd.Flags().Changed("keep") {
			keep, _ = cmd.Flags().GetInt("keep")
		}
		if keep < 1 {
			return fmt.Errorf("--keep must be at least 1")
		}

		wb, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		removed, err := backup.Prune(wb, app.settings.Backup.Policy, keep, app.logger)
		app.host.Notify(ui.Info, fmt.Sprintf("Removed %d backup(s), kept up to %d", removed, keep))
		return err
	},
}

// parseWhen parses natural-language times such as "2 days ago".
func parseWhen(text string, now time.Time) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", text)
	}
	return r.Time, nil
}

func init() {
	backupListCmd.Flags().String("since", "", `only show backups taken after this time, e.g. "2 days ago"`)
	backupPruneCmd.Flags().Int("keep", 0, "number of backups to keep (default: backup.maxFiles)")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupPruneCmd)
	rootCmd.AddCommand(backupCmd)
}
