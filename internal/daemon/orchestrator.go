package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pqsync/pqsync/internal/clock"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/syncer"
	"github.com/pqsync/pqsync/internal/ui"
)

var (
	// ErrStopped is returned by calls made after Run has returned.
	ErrStopped = errors.New("orchestrator stopped")

	// ErrCancelled is returned when the user declined a confirmation.
	ErrCancelled = errors.New("cancelled")

	// ErrNotWatched is returned for operations on a file that is not
	// being watched.
	ErrNotWatched = errors.New("file is not being watched")
)

// State is the sync state of a watched file.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSyncing
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Config holds configuration for the orchestrator.
type Config struct {
	// Syncer runs the sync pipeline. Required.
	Syncer syncer.Syncer
	// Host shows notices and prompts. Required.
	Host ui.Host

	// Clock defaults to clock.Real().
	Clock clock.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Delays sizes the debounce window.
	Delays Delays
	// LockRetry is the fixed delay before retrying a locked workbook.
	LockRetry time.Duration
	// ExtractGuard is how long events for a freshly extracted file are
	// ignored.
	ExtractGuard time.Duration

	// OffOnDelete stops watching a file once it is gone.
	OffOnDelete bool
	// ConfirmSyncDelete asks before SyncAndDelete.
	ConfirmSyncDelete bool
	// SyncDeleteStopsWatch stops watching before SyncAndDelete.
	SyncDeleteStopsWatch bool

	// Primary is the main watcher backend. Nil creates a FileWatcher.
	Primary Source
	// Secondary is an optional additional backend, e.g. a Poller.
	Secondary Source

	// Stat defaults to os.Stat. It sizes the debounce and confirms
	// deletions.
	Stat func(string) (fs.FileInfo, error)

	// Observers receive every Event.
	Observers []Observer
}

// DefaultConfig returns the settings pqsync ships with. Syncer and Host
// must still be set.
func DefaultConfig() Config {
	return Config{
		Delays: Delays{
			Base:            500 * time.Millisecond,
			MediumThreshold: 10 << 20,
			MediumFloor:     2 * time.Second,
			LargeThreshold:  50 << 20,
			LargeFloor:      5 * time.Second,
		},
		LockRetry:            2 * time.Second,
		ExtractGuard:         2 * time.Second,
		OffOnDelete:          true,
		ConfirmSyncDelete:    true,
		SyncDeleteStopsWatch: true,
	}
}

// entry is the watch state of one .m file. Owned by the event loop.
type entry struct {
	path     string
	workbook string // resolved once at watch start; "" if none
	state    State
	timer    *clock.Timer
	gen      uint64
	delay    time.Duration
	rerun    bool

	lastSync  time.Time
	lastError string
}

// WatchStatus is a snapshot of one watched file.
type WatchStatus struct {
	Path      string    `json:"path"`
	Workbook  string    `json:"workbook"`
	State     string    `json:"state"`
	Delay     string    `json:"delay,omitempty"`
	LastSync  time.Time `json:"lastSync,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Orchestrator watches .m files and syncs them into their workbooks.
//
// All watch state lives on a single event loop started by Run. Watcher
// events, timer fires, finished syncs and API calls are all delivered to
// that loop, so the state needs no locking. Syncs run in their own
// goroutines; different files sync concurrently, while one file never has
// more than one sync in flight.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	reqs chan func()
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup // in-flight syncs

	// Owned by the event loop.
	entries map[string]*entry
	// inflight holds paths with a sync goroutine running. It outlives
	// the entry so that a stop and re-watch cannot start a second sync.
	inflight map[string]bool
	guard    *extractionGuard
	ctx     context.Context
}

// New creates an orchestrator. Call Run to start it.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stat == nil {
		cfg.Stat = os.Stat
	}
	if cfg.Primary == nil {
		fw, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		cfg.Primary = fw
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "daemon"),
		reqs:     make(chan func()),
		done:     make(chan struct{}),
		entries:  make(map[string]*entry),
		inflight: make(map[string]bool),
		guard:    newExtractionGuard(cfg.Clock, cfg.ExtractGuard),
		ctx:      context.Background(),
	}, nil
}

// Run processes events until ctx is cancelled. In-flight syncs are
// allowed to finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = context.WithoutCancel(ctx)
	o.logger.Info("orchestrator started")

	var forwarders sync.WaitGroup
	for _, src := range []Source{o.cfg.Primary, o.cfg.Secondary} {
		if src == nil {
			continue
		}
		forwarders.Add(2)
		go func(src Source) {
			defer forwarders.Done()
			for ev := range src.Events() {
				_ = o.Submit(ev)
			}
		}(src)
		go func(src Source) {
			defer forwarders.Done()
			for err := range src.Errors() {
				o.logger.Warn("watcher error", "error", err)
			}
		}(src)
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case fn := <-o.reqs:
			fn()
		}
	}

	for path, e := range o.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(o.entries, path)
	}
	o.once.Do(func() { close(o.done) })

	var errs []error
	for _, src := range []Source{o.cfg.Primary, o.cfg.Secondary} {
		if src == nil {
			continue
		}
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	forwarders.Wait()
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
	return errors.Join(errs...)
}

// do runs fn on the event loop and waits for it.
func (o *Orchestrator) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case o.reqs <- func() { fn(); close(finished) }:
	case <-o.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// Submit delivers a change event to the loop and waits until it has been
// handled.
func (o *Orchestrator) Submit(ev FileChangeEvent) error {
	return o.do(func() { o.handleEvent(ev) })
}

// Watch starts watching mPath. When no workbook can be resolved the user
// is asked whether to watch anyway; every sync of such a file stops with
// an association failure.
func (o *Orchestrator) Watch(mPath string) error {
	return o.watch(mPath, true)
}

func (o *Orchestrator) watch(mPath string, ask bool) error {
	mPath, err := filepath.Abs(mPath)
	if err != nil {
		return err
	}
	if _, err := o.cfg.Stat(mPath); err != nil {
		return fmt.Errorf("cannot watch %s: %w", mPath, err)
	}

	workbook, err := o.cfg.Syncer.Resolve(mPath)
	if err != nil {
		if !ask {
			return err
		}
		choice := o.cfg.Host.Confirm(ui.Prompt{
			Title:   "No workbook found",
			Message: err.Error(),
			Options: []string{ui.WatchAnyway, ui.Cancel},
			Default: ui.Cancel,
		})
		if choice != ui.WatchAnyway {
			return err
		}
		workbook = ""
	}

	var addErr error
	if err := o.do(func() { addErr = o.addEntry(mPath, workbook) }); err != nil {
		return err
	}
	return addErr
}

func (o *Orchestrator) addEntry(mPath, workbook string) error {
	if _, ok := o.entries[mPath]; ok {
		o.cfg.Host.Notify(ui.Info, "Already watching "+filepath.Base(mPath))
		return nil
	}
	if err := o.cfg.Primary.Add(mPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", mPath, err)
	}
	if o.cfg.Secondary != nil {
		if err := o.cfg.Secondary.Add(mPath); err != nil {
			o.logger.Warn("secondary watcher unavailable", "path", mPath, "error", err)
		}
	}

	o.entries[mPath] = &entry{path: mPath, workbook: workbook}
	o.emit(Event{Type: EventWatchStarted, Path: mPath, Workbook: workbook})

	if workbook == "" {
		o.cfg.Host.Notify(ui.Warning, "Watching "+filepath.Base(mPath)+" without a workbook; syncs will be refused")
	} else {
		o.cfg.Host.Notify(ui.Info, fmt.Sprintf("Watching %s -> %s", filepath.Base(mPath), filepath.Base(workbook)))
	}
	o.logger.Info("watch started", "path", mPath, "workbook", workbook)
	return nil
}

// Stop stops watching mPath and cancels its pending sync. A sync already
// running completes.
func (o *Orchestrator) Stop(mPath string) error {
	mPath, err := filepath.Abs(mPath)
	if err != nil {
		return err
	}
	var found bool
	if err := o.do(func() { found = o.removeEntry(mPath, "stopped") }); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotWatched, mPath)
	}
	return nil
}

// Toggle starts or stops watching mPath and reports whether it is watched
// afterwards.
func (o *Orchestrator) Toggle(mPath string) (bool, error) {
	abs, err := filepath.Abs(mPath)
	if err != nil {
		return false, err
	}
	var watched bool
	if err := o.do(func() { _, watched = o.entries[abs] }); err != nil {
		return false, err
	}
	if watched {
		return false, o.Stop(abs)
	}
	if err := o.Watch(abs); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) removeEntry(mPath, reason string) bool {
	e, ok := o.entries[mPath]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(o.entries, mPath)

	if err := o.cfg.Primary.Remove(mPath); err != nil {
		o.logger.Warn("failed to remove watch", "path", mPath, "error", err)
	}
	if o.cfg.Secondary != nil {
		if err := o.cfg.Secondary.Remove(mPath); err != nil {
			o.logger.Warn("failed to remove secondary watch", "path", mPath, "error", err)
		}
	}

	o.emit(Event{Type: EventWatchStopped, Path: mPath, Workbook: e.workbook, Detail: reason})
	o.cfg.Host.Notify(ui.Info, fmt.Sprintf("Stopped watching %s (%s)", filepath.Base(mPath), reason))
	o.logger.Info("watch stopped", "path", mPath, "reason", reason)
	return true
}

// Watched returns a snapshot of every watched file, sorted by path.
func (o *Orchestrator) Watched() ([]WatchStatus, error) {
	var out []WatchStatus
	err := o.do(func() {
		for _, e := range o.entries {
			ws := WatchStatus{
				Path:      e.path,
				Workbook:  e.workbook,
				State:     e.state.String(),
				LastSync:  e.lastSync,
				LastError: e.lastError,
			}
			if e.state == StatePending {
				ws.Delay = e.delay.String()
			}
			out = append(out, ws)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}

// AutoWatch watches every sidecar under dir whose workbook exists. Files
// without a workbook are skipped silently. It returns the paths watched.
func (o *Orchestrator) AutoWatch(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(d.Name(), ".") || strings.HasSuffix(d.Name(), "_debug_extraction")) {
				return filepath.SkipDir
			}
			return nil
		}
		if mcode.IsSidecar(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var watched []string
	for _, path := range found {
		if err := o.watch(path, false); err != nil {
			o.logger.Debug("auto-watch skipped file", "path", path, "error", err)
			continue
		}
		abs, _ := filepath.Abs(path)
		watched = append(watched, abs)
	}
	return watched, nil
}

// Extract extracts workbookPath. Events caused by writing the sidecar
// are suppressed for the guard window.
func (o *Orchestrator) Extract(ctx context.Context, workbookPath string) (*syncer.ExtractResult, error) {
	mPath, err := filepath.Abs(mcode.SidecarPath(workbookPath))
	if err != nil {
		return nil, err
	}
	if err := o.do(func() { o.guard.add(mPath) }); err != nil {
		return nil, err
	}

	res, err := o.cfg.Syncer.Extract(ctx, workbookPath)
	if err != nil {
		_ = o.do(func() {
			o.emit(Event{Type: EventSyncFailed, Path: mPath, Workbook: workbookPath, Err: err, Detail: DetailExtract})
		})
		return nil, err
	}

	_ = o.do(func() {
		o.guard.add(mPath)
		o.emit(Event{Type: EventExtractCompleted, Path: res.MPath, Workbook: res.Workbook, Hash: res.Hash})
	})
	return res, nil
}

// SyncAndDelete syncs mPath into its workbook and deletes mPath, after
// confirmation when configured.
func (o *Orchestrator) SyncAndDelete(ctx context.Context, mPath string) (*syncer.SyncResult, error) {
	mPath, err := filepath.Abs(mPath)
	if err != nil {
		return nil, err
	}

	var (
		watched  bool
		workbook string
	)
	if err := o.do(func() {
		if e, ok := o.entries[mPath]; ok {
			watched, workbook = true, e.workbook
		}
	}); err != nil {
		return nil, err
	}

	if !watched {
		wb, err := o.cfg.Syncer.Resolve(mPath)
		if err != nil {
			o.cfg.Host.Notify(ui.Error, err.Error())
			return nil, err
		}
		workbook = wb
	} else if workbook == "" {
		err := &syncer.Error{Kind: syncer.ErrAssociation, Op: "sync", Path: mPath, Err: errors.New(mcode.NamingHint(mPath))}
		o.cfg.Host.Notify(ui.Error, err.Error())
		return nil, err
	}

	if o.cfg.ConfirmSyncDelete {
		choice := o.cfg.Host.Confirm(ui.Prompt{
			Title:   "Sync and delete",
			Message: fmt.Sprintf("Sync %s into %s and delete the .m file?", filepath.Base(mPath), filepath.Base(workbook)),
			Options: []string{ui.SyncDelete, ui.Cancel},
			Default: ui.Cancel,
		})
		if choice != ui.SyncDelete {
			return nil, ErrCancelled
		}
	}

	if watched && o.cfg.SyncDeleteStopsWatch {
		if err := o.do(func() { o.removeEntry(mPath, "sync and delete") }); err != nil {
			return nil, err
		}
	}

	res, err := o.cfg.Syncer.SyncAndDelete(ctx, mPath, syncer.SyncOptions{Workbook: workbook})
	_ = o.do(func() {
		if err != nil {
			o.emit(Event{Type: EventSyncFailed, Path: mPath, Workbook: workbook, Err: err})
			return
		}
		o.emit(Event{Type: EventSyncCompleted, Path: mPath, Workbook: workbook, Backup: res.Backup, Hash: res.Hash, Detail: DetailDeleted})
	})
	if err != nil {
		o.cfg.Host.Notify(ui.Error, describe(err))
		return nil, err
	}
	o.cfg.Host.Notify(ui.Info, fmt.Sprintf("Synced %s into %s and deleted it", filepath.Base(mPath), filepath.Base(workbook)))
	return res, nil
}

func (o *Orchestrator) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = o.cfg.Clock.Now()
	}
	for _, obs := range o.cfg.Observers {
		obs.Observe(e)
	}
}

// schedule runs fn on the loop after d. With d <= 0 it runs fn now; the
// caller is already on the loop.
func (o *Orchestrator) schedule(d time.Duration, fn func()) *clock.Timer {
	if d <= 0 {
		fn()
		return nil
	}
	return o.cfg.Clock.AfterFunc(d, func() { _ = o.do(fn) })
}
