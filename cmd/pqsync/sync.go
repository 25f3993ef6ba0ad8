package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/journal"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync <file.m>",
	GroupID: "sync",
	Short:   "Write a .m file back into its workbook",
	Long: `Write the formula in a <workbook>_PowerQuery.m file back into the
workbook's DataMashup part.

The workbook is derived from the file name. A backup is taken right before
the workbook is rewritten; if the write fails you are offered a restore.

Examples:
  pqsync sync Sales.xlsx_PowerQuery.m
  pqsync sync Sales.xlsx_PowerQuery.m --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		retries, _ := cmd.Flags().GetInt("retries")

		mPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		s := newSyncer()
		res, err := syncWithPrompts(cmd.Context(), s, mPath, retries, func() (*syncer.SyncResult, error) {
			return s.Sync(cmd.Context(), mPath, syncer.SyncOptions{Force: force})
		})
		return reportSync(cmd.Context(), journal.OpSync, mPath, res, err)
	},
}

var syncDeleteCmd = &cobra.Command{
	Use:     "sync-delete <file.m>",
	GroupID: "sync",
	Short:   "Write a .m file back into its workbook, then delete it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		retries, _ := cmd.Flags().GetInt("retries")

		mPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		s := newSyncer()
		wb, err := s.Resolve(mPath)
		if err != nil {
			return err
		}

		if !yes && app.settings.SyncDelete.AlwaysConfirm {
			choice := app.host.Confirm(ui.Prompt{
				Title:   "Sync and delete",
				Message: fmt.Sprintf("Sync %s into %s and delete the .m file?", filepath.Base(mPath), filepath.Base(wb)),
				Options: []string{ui.SyncDelete, ui.Cancel},
				Default: ui.Cancel,
			})
			if choice != ui.SyncDelete {
				app.host.Notify(ui.Info, "Cancelled")
				return nil
			}
		}

		res, err := syncWithPrompts(cmd.Context(), s, mPath, retries, func() (*syncer.SyncResult, error) {
			return s.SyncAndDelete(cmd.Context(), mPath, syncer.SyncOptions{Workbook: wb})
		})
		return reportSync(cmd.Context(), journal.OpSyncDelete, mPath, res, err)
	},
}

// syncWithPrompts runs fn, asking the user to retry while the workbook is
// locked (at most retries times) and offering a restore after a failed
// write.
func syncWithPrompts(ctx context.Context, s syncer.Syncer, mPath string, retries int, fn func() (*syncer.SyncResult, error)) (*syncer.SyncResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		if syncer.IsRetryable(err) && attempt < retries {
			choice := app.host.Confirm(ui.Prompt{
				Title:   "Workbook is locked",
				Message: fmt.Sprintf("%v\nClose the workbook and retry?", err),
				Options: []string{ui.Retry, ui.Cancel},
				Default: ui.Retry,
			})
			if choice == ui.Retry {
				select {
				case <-time.After(app.settings.Sync.LockRetry):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, err
		}

		if bk, ok := syncer.IsRestorable(err); ok {
			var syncErr *syncer.Error
			wb := ""
			if errors.As(err, &syncErr) {
				wb = syncErr.Path
			}
			choice := app.host.Confirm(ui.Prompt{
				Title:   "Write failed",
				Message: fmt.Sprintf("%v\nRestore the backup %s?", err, filepath.Base(bk)),
				Options: []string{ui.Restore, ui.KeepCurrent},
				Default: ui.Restore,
			})
			if choice == ui.Restore && wb != "" {
				rec, rerr := s.Restore(ctx, wb, bk)
				record(ctx, journal.Entry{Op: journal.OpRestore, Outcome: outcome(rerr), Path: mPath, Workbook: wb, Backup: bk, Error: errString(rerr)})
				if rerr != nil {
					app.host.Notify(ui.Error, fmt.Sprintf("Restore failed: %v", rerr))
				} else {
					app.host.Notify(ui.Warning, fmt.Sprintf("Restored %s from %s", filepath.Base(wb), filepath.Base(rec.Path)))
				}
			}
		}
		return nil, err
	}
}

func reportSync(ctx context.Context, op, mPath string, res *syncer.SyncResult, err error) error {
	entry := journal.Entry{Op: op, Outcome: outcome(err), Path: mPath, Error: errString(err)}
	if res != nil {
		entry.Workbook, entry.Backup, entry.Hash = res.Workbook, res.Backup, res.Hash
		if res.Unchanged {
			entry.Outcome = journal.OutcomeSkipped
		}
	}
	record(ctx, entry)

	if err != nil {
		return err
	}
	switch {
	case res.Unchanged:
		app.host.Notify(ui.Info, fmt.Sprintf("%s is unchanged since the last sync; nothing to do (use --force to write anyway)", filepath.Base(mPath)))
	case op == journal.OpSyncDelete:
		app.host.Notify(ui.Info, fmt.Sprintf("Synced %s into %s and deleted it", filepath.Base(mPath), filepath.Base(res.Workbook)))
	default:
		app.host.Notify(ui.Info, fmt.Sprintf("Synced %s into %s", filepath.Base(mPath), filepath.Base(res.Workbook)))
	}
	if res.Backup != "" {
		app.logger.Info("backup taken", "path", res.Backup)
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("force", false, "write even if the formula looks unchanged")
	syncCmd.Flags().Int("retries", 3, "how often to offer a retry while the workbook is locked")
	syncDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	syncDeleteCmd.Flags().Int("retries", 3, "how often to offer a retry while the workbook is locked")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(syncDeleteCmd)
}
