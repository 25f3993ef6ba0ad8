package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pqsync/pqsync/internal/daemon"
)

// Observer writes daemon events to a Journal from a background goroutine,
// so Observe never waits on the database.
type Observer struct {
	j      *Journal
	logger *slog.Logger
	queue  chan Entry
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewObserver starts an Observer writing to j.
func NewObserver(j *Journal, l *slog.Logger) *Observer {
	o := &Observer{j: j, logger: logger(l), queue: make(chan Entry, 256)}
	o.wg.Add(1)
	go o.run()
	return o
}

// Observe implements daemon.Observer.
func (o *Observer) Observe(e daemon.Event) {
	entry, ok := EntryFor(e)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- entry:
	default:
		o.logger.Warn("journal queue full, dropping entry", "op", entry.Op, "path", entry.Path)
	}
}

// Close flushes queued entries and stops the writer. It does not close
// the Journal.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Observer) run() {
	defer o.wg.Done()
	for entry := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := o.j.Record(ctx, entry); err != nil {
			o.logger.Error("failed to write journal entry", "op", entry.Op, "path", entry.Path, "error", err)
		}
		cancel()
	}
}

// EntryFor converts a daemon event to a journal entry. Events that are not
// journaled, such as a sync starting, return false.
func EntryFor(e daemon.Event) (Entry, bool) {
	entry := Entry{
		Time:     e.Time,
		Path:     e.Path,
		Workbook: e.Workbook,
		Backup:   e.Backup,
		Hash:     e.Hash,
		Outcome:  OutcomeOK,
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}

	switch e.Type {
	case daemon.EventExtractCompleted:
		entry.Op = OpExtract
	case daemon.EventSyncCompleted:
		entry.Op = OpSync
		if e.Detail == daemon.DetailDeleted {
			entry.Op = OpSyncDelete
		}
	case daemon.EventSyncSkipped:
		entry.Op, entry.Outcome = OpSync, OutcomeSkipped
	case daemon.EventSyncFailed:
		entry.Op, entry.Outcome = OpSync, OutcomeFailed
		if e.Detail == daemon.DetailExtract {
			entry.Op = OpExtract
		}
	case daemon.EventRestoreCompleted:
		entry.Op = OpRestore
	case daemon.EventWatchStarted:
		entry.Op = OpWatch
	case daemon.EventWatchStopped:
		entry.Op = OpUnwatch
	default:
		return Entry{}, false
	}
	return entry, true
}
