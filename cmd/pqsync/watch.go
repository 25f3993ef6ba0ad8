package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pqsync/pqsync/internal/clock"
	"github.com/pqsync/pqsync/internal/daemon"
	"github.com/pqsync/pqsync/internal/dashboard"
	"github.com/pqsync/pqsync/internal/journal"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [file.m|workbook...]",
	GroupID: "sync",
	Short:   "Watch .m files and sync every change into their workbooks",
	Long: `Watch .m files and sync each change back into its workbook after a short
quiet period. Bursts of saves are coalesced into one sync; larger workbooks
wait longer.

A workbook argument is extracted first and its .m file watched. With --auto,
every <workbook>_PowerQuery.m under the directory whose workbook exists is
watched.

The watcher runs until interrupted (Ctrl+C).

Examples:
  pqsync watch Sales.xlsx_PowerQuery.m
  pqsync watch Sales.xlsx                  # extract, then watch
  pqsync watch --auto .                     # everything in this folder
  pqsync watch --auto . --dashboard-port 8484`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := app.settings

		auto, _ := cmd.Flags().GetString("auto")
		if auto == "" && s.Watch.AutoWatch && len(args) == 0 {
			auto = "."
		}
		port := s.DashboardPort
		if cmd.Flags().Changed("dashboard-port") {
			port, _ = cmd.Flags().GetInt("dashboard-port")
		}
		if len(args) == 0 && auto == "" {
			return errors.New("nothing to watch: pass .m files or workbooks, or use --auto DIR")
		}

		cfg := daemon.Config{
			Syncer: newSyncer(),
			Host:   app.host,
			Clock:  clock.Real(),
			Logger: app.logger,
			Delays: daemon.Delays{
				Base:            s.Sync.Debounce,
				MediumThreshold: s.Sync.MediumThresholdBytes,
				MediumFloor:     s.Sync.MediumDebounce,
				LargeThreshold:  s.Sync.LargeThresholdBytes,
				LargeFloor:      s.Sync.LargeDebounce,
			},
			LockRetry:            s.Sync.LockRetry,
			ExtractGuard:         s.Watch.ExtractGuard,
			OffOnDelete:          s.Watch.OffOnDelete,
			ConfirmSyncDelete:    s.SyncDelete.AlwaysConfirm,
			SyncDeleteStopsWatch: s.SyncDelete.TurnsWatchOff,
		}
		if s.Watch.Poll {
			cfg.Secondary = daemon.NewPoller(cfg.Clock, s.Watch.PollInterval, nil)
		}

		var jobs []func()
		if j := openJournal(); j != nil {
			obs := journal.NewObserver(j, app.logger)
			cfg.Observers = append(cfg.Observers, obs)
			jobs = append(jobs, obs.Close)
		}

		var server *dashboard.Server
		if port > 0 {
			server = dashboard.NewServer(dashboard.Config{Port: port, Logger: app.logger})
			cfg.Observers = append(cfg.Observers, server)
		}

		o, err := daemon.New(cfg)
		if err != nil {
			return err
		}

		if server != nil {
			server.SetStatus(o.Watched)
			if err := server.Start(); err != nil {
				return err
			}
			defer func() {
				if err := server.Stop(); err != nil {
					app.logger.Warn("dashboard shutdown failed", "error", err)
				}
			}()
			app.host.Notify(ui.Info, fmt.Sprintf("Status feed on http://%s/status (ws://%s/ws)", server.Addr(), server.Addr()))
		}

		done := make(chan error, 1)
		go func() { done <- o.Run(ctx) }()

		watched := 0
		for _, arg := range args {
			if err := watchArg(cmd, o, arg); err != nil {
				app.host.Notify(ui.Error, err.Error())
				continue
			}
			watched++
		}
		if auto != "" {
			paths, err := o.AutoWatch(auto)
			if err != nil {
				app.host.Notify(ui.Error, err.Error())
			}
			watched += len(paths)
			if len(paths) == 0 {
				app.host.Notify(ui.Info, fmt.Sprintf("No .m files with a matching workbook found in %s", auto))
			}
		}

		if watched == 0 {
			app.host.Notify(ui.Warning, "Nothing is being watched; waiting for Ctrl+C")
		} else {
			app.host.Notify(ui.Info, "Press Ctrl+C to stop")
		}

		err = <-done
		for _, job := range jobs {
			job()
		}
		return err
	},
}

// watchArg watches a .m file, or extracts a workbook and watches its .m
// file.
func watchArg(cmd *cobra.Command, o *daemon.Orchestrator, arg string) error {
	path, err := filepath.Abs(arg)
	if err != nil {
		return err
	}
	if !mcode.IsWorkbook(path) {
		return o.Watch(path)
	}

	mPath := mcode.SidecarPath(path)
	if _, err := os.Stat(mPath); err == nil {
		return o.Watch(mPath)
	}
	res, err := o.Extract(cmd.Context(), path)
	if errors.Is(err, syncer.ErrNotFound) {
		return fmt.Errorf("no Power Query found in %s", filepath.Base(path))
	}
	if err != nil {
		return err
	}
	app.host.Notify(ui.Info, fmt.Sprintf("Extracted %s", filepath.Base(res.MPath)))
	return o.Watch(res.MPath)
}

func init() {
	watchCmd.Flags().String("auto", "", "watch every .m file with a matching workbook under this directory")
	watchCmd.Flags().Int("dashboard-port", 0, "serve the live status feed on this port (0 disables)")
	rootCmd.AddCommand(watchCmd)
}
