// Package daemon watches .m sidecar files and syncs them back into their
// workbooks.
//
// # Architecture
//
// The daemon consists of several components:
//
//   - FileWatcher: fsnotify-based change notifications (primary Source)
//   - Poller: size and mtime polling for unreliable file systems (secondary Source)
//   - Orchestrator: debouncing, the extraction guard, and sync dispatch
//
// Every change goes through a single event loop owned by the
// Orchestrator. A change arms a per-file debounce timer whose length
// depends on the workbook size (see Delays); further changes restart it.
// When it fires the file is synced on its own goroutine, and the result,
// including any lock retry or restore prompt, is handed back to the loop.
//
//	o, err := daemon.New(daemon.Config{Syncer: s, Host: host, Delays: delays})
//	if err != nil {
//	    return err
//	}
//	go o.Run(ctx)
//	if err := o.Watch("/data/Sales.xlsx_PowerQuery.m"); err != nil {
//	    return err
//	}
//
// Changes to a file pqsync extracted itself within the guard window are
// ignored, so an extraction never loops back into a sync.
package daemon
