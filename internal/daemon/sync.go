package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/pqsync/pqsync/internal/backup"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

// handleEvent runs on the loop.
func (o *Orchestrator) handleEvent(ev FileChangeEvent) {
	e, ok := o.entries[ev.Path]
	if !ok {
		return
	}
	if o.guard.contains(ev.Path) {
		o.logger.Debug("ignoring change to freshly extracted file", "path", ev.Path, "op", ev.Op, "source", ev.Source)
		return
	}
	if e.state == StateSyncing {
		e.rerun = true
		return
	}
	delay := o.cfg.Delays.For(o.workbookSize(e))
	if ev.Op == OpDelete && delay < deleteGrace {
		delay = deleteGrace
	}
	o.arm(e, delay)
}

func (o *Orchestrator) workbookSize(e *entry) int64 {
	if e.workbook == "" {
		return 0
	}
	info, err := o.cfg.Stat(e.workbook)
	if err != nil {
		return 0
	}
	return info.Size()
}

// arm (re)starts the debounce timer of e. Only the most recent timer of
// an entry may fire; older generations are ignored.
func (o *Orchestrator) arm(e *entry, delay time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	gen, path := e.gen, e.path
	e.state = StatePending
	e.delay = delay
	if t := o.schedule(delay, func() { o.fire(path, gen) }); t != nil {
		e.timer = t
	}
}

// fire runs on the loop when a debounce timer expires.
func (o *Orchestrator) fire(path string, gen uint64) {
	e, ok := o.entries[path]
	if !ok || e.gen != gen || e.state != StatePending {
		return
	}
	e.timer = nil

	if _, err := o.cfg.Stat(path); errors.Is(err, fs.ErrNotExist) {
		e.state = StateIdle
		if o.cfg.OffOnDelete {
			o.cfg.Host.Notify(ui.Warning, filepath.Base(path)+" was deleted")
			o.removeEntry(path, "file deleted")
			return
		}
		o.logger.Info("watched file is gone, waiting for it to return", "path", path)
		return
	}

	if e.workbook == "" {
		e.state = StateIdle
		err := &syncer.Error{Kind: syncer.ErrAssociation, Op: "sync", Path: path, Err: errors.New(mcode.NamingHint(path))}
		e.lastError = err.Error()
		o.emit(Event{Type: EventSyncFailed, Path: path, Err: err})
		o.cfg.Host.Notify(ui.Error, describe(err))
		return
	}

	e.state = StateSyncing
	if o.inflight[path] {
		// Re-watched while the previous watch's sync is still running.
		e.rerun = true
		return
	}
	o.inflight[path] = true
	o.emit(Event{Type: EventSyncStarted, Path: path, Workbook: e.workbook})
	o.wg.Add(1)
	go o.runSync(path, e.workbook)
}

// syncOutcome is what a sync goroutine reports back to the loop.
type syncOutcome struct {
	res      *syncer.SyncResult
	err      error
	retry    bool
	restored *backup.Record
	// restoreErr is set when the user asked for a restore that failed.
	restoreErr error
}

// runSync runs one sync off the loop, including any prompts the failure
// calls for.
func (o *Orchestrator) runSync(path, workbook string) {
	defer o.wg.Done()

	var out syncOutcome
	out.res, out.err = o.cfg.Syncer.Sync(o.ctx, path, syncer.SyncOptions{Workbook: workbook})

	if out.err != nil {
		if syncer.IsRetryable(out.err) {
			choice := o.cfg.Host.Confirm(ui.Prompt{
				Title:   "Workbook is locked",
				Message: fmt.Sprintf("%s is open in another program. Close it and retry?", filepath.Base(workbook)),
				Options: []string{ui.Retry, ui.Cancel},
				Default: ui.Retry,
			})
			out.retry = choice == ui.Retry
		} else if bk, ok := syncer.IsRestorable(out.err); ok {
			choice := o.cfg.Host.Confirm(ui.Prompt{
				Title:   "Write failed",
				Message: fmt.Sprintf("Writing %s failed. Restore the backup %s?", filepath.Base(workbook), filepath.Base(bk)),
				Options: []string{ui.Restore, ui.KeepCurrent},
				Default: ui.Restore,
			})
			if choice == ui.Restore {
				out.restored, out.restoreErr = o.cfg.Syncer.Restore(o.ctx, workbook, bk)
			}
		}
	}

	_ = o.do(func() { o.finishSync(path, workbook, out) })
}

// finishSync runs on the loop after a sync goroutine is done.
func (o *Orchestrator) finishSync(path, workbook string, out syncOutcome) {
	delete(o.inflight, path)

	switch {
	case out.err == nil && out.res.Unchanged:
		o.emit(Event{Type: EventSyncSkipped, Path: path, Workbook: workbook, Hash: out.res.Hash})
		o.logger.Debug("formula unchanged, sync skipped", "path", path)

	case out.err == nil:
		o.emit(Event{Type: EventSyncCompleted, Path: path, Workbook: workbook, Backup: out.res.Backup, Hash: out.res.Hash})
		o.cfg.Host.Notify(ui.Info, fmt.Sprintf("Synced %s into %s", filepath.Base(path), filepath.Base(workbook)))

	default:
		o.emit(Event{Type: EventSyncFailed, Path: path, Workbook: workbook, Err: out.err})
		switch {
		case out.retry:
			o.logger.Info("workbook locked, retrying", "path", path, "workbook", workbook, "after", o.cfg.LockRetry)
		case out.restored != nil:
			o.emit(Event{Type: EventRestoreCompleted, Path: path, Workbook: workbook, Backup: out.restored.Path})
			o.cfg.Host.Notify(ui.Warning, fmt.Sprintf("%s; restored %s from %s", describe(out.err), filepath.Base(workbook), filepath.Base(out.restored.Path)))
		case out.restoreErr != nil:
			o.cfg.Host.Notify(ui.Error, fmt.Sprintf("%s; restore failed: %v", describe(out.err), out.restoreErr))
		default:
			o.cfg.Host.Notify(ui.Error, describe(out.err))
		}
	}

	e, ok := o.entries[path]
	if !ok {
		return
	}
	e.state = StateIdle
	if out.err == nil {
		e.lastSync = o.cfg.Clock.Now()
		e.lastError = ""
	} else {
		e.lastError = out.err.Error()
	}

	switch {
	case out.retry:
		e.rerun = false
		o.arm(e, o.cfg.LockRetry)
	case e.rerun:
		e.rerun = false
		o.arm(e, o.cfg.Delays.For(o.workbookSize(e)))
	}
}

// describe turns a sync error into a notice.
func describe(err error) string {
	switch {
	case errors.Is(err, syncer.ErrNotFound):
		return "No Power Query found in the workbook: " + err.Error()
	case errors.Is(err, syncer.ErrLocked):
		return "Workbook is locked by another program: " + err.Error()
	default:
		return err.Error()
	}
}
