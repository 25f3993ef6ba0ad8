package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/config"
	"github.com/pqsync/pqsync/internal/journal"
	"github.com/pqsync/pqsync/internal/logging"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

// app holds what every command needs. It is built once per process by
// setup.
var app struct {
	store    *config.Store
	settings config.Settings
	logger   *slog.Logger
	closeLog func() error
	host     ui.Host
	journal  *journal.Journal
}

// flagKeys binds global flags to configuration keys.
var flagKeys = map[string]string{
	"verbose":  "log.verbose",
	"log-file": "log.file",
}

func setup(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	file, _ := flags.GetString("config")

	store, err := config.Load(file, slog.Default())
	if err != nil {
		return err
	}
	for name, key := range flagKeys {
		if err := store.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	app.store = store
	app.settings = store.Settings()

	log := app.settings.Log
	app.logger, app.closeLog = logging.New(logging.Options{
		File:       log.File,
		MaxSizeMB:  log.MaxSizeMB,
		MaxBackups: log.MaxBackups,
		MaxAgeDays: log.MaxAgeDays,
		Compress:   log.Compress,
		Verbose:    log.Verbose,
	})
	slog.SetDefault(app.logger)

	noInput, _ := flags.GetBool("no-input")
	if noInput || !ui.Interactive() {
		app.host = ui.NewHeadless(os.Stdout, app.logger)
	} else {
		app.host = ui.NewTerminal(os.Stdout, app.logger)
	}
	return nil
}

func teardown() {
	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			app.logger.Warn("failed to close journal", "error", err)
		}
		app.journal = nil
	}
	if app.closeLog != nil {
		_ = app.closeLog()
		app.closeLog = nil
	}
}

// newSyncer builds the sync pipeline from the current settings.
func newSyncer() syncer.Syncer {
	s := app.settings
	return syncer.New(syncer.Config{
		Logger:         app.logger,
		Prefix:         s.LocatorPrefix,
		Backup:         s.Backup.Enable,
		BackupPolicy:   s.Backup.Policy,
		KeepBackups:    s.Backup.MaxFiles,
		CheckWriteable: s.Watch.CheckWriteable,
	})
}

// openJournal opens the sync journal, or returns nil when it is disabled
// or unavailable. Commands keep working without it.
func openJournal() *journal.Journal {
	if app.journal != nil || app.settings.JournalPath == "" {
		return app.journal
	}
	j, err := journal.Open(app.settings.JournalPath)
	if err != nil {
		app.logger.Warn("sync journal unavailable", "path", app.settings.JournalPath, "error", err)
		return nil
	}
	app.journal = j
	return j
}

// record appends an outcome to the journal, if there is one.
func record(ctx context.Context, e journal.Entry) {
	j := openJournal()
	if j == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if _, err := j.Record(ctx, e); err != nil {
		app.logger.Warn("failed to record journal entry", "op", e.Op, "error", err)
	}
}

// outcome maps a pipeline error to a journal outcome.
func outcome(err error) string {
	if err != nil {
		return journal.OutcomeFailed
	}
	return journal.OutcomeOK
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
