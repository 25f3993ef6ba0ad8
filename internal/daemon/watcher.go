package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher is the primary Source, built on fsnotify.
//
// It watches the parent directory of each registered file rather than the
// file itself, so editors that save by writing a temporary file and
// renaming it over the original keep being observed.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
	files  map[string]bool // registered file -> true
	dirs   map[string]int  // watched directory -> registered files in it
}

// NewFileWatcher creates a FileWatcher and starts its event loop.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		events:  make(chan FileChangeEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
	}
	fw.wg.Add(1)
	go fw.processEvents()
	return fw, nil
}

// Add starts watching path.
func (fw *FileWatcher) Add(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return fmt.Errorf("watcher closed")
	}
	if fw.files[path] {
		return nil
	}

	dir := filepath.Dir(path)
	if fw.dirs[dir] == 0 {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	fw.dirs[dir]++
	fw.files[path] = true
	return nil
}

// Remove stops watching path.
func (fw *FileWatcher) Remove(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.files[path] {
		return nil
	}
	delete(fw.files, path)

	dir := filepath.Dir(path)
	fw.dirs[dir]--
	if fw.dirs[dir] > 0 {
		return nil
	}
	delete(fw.dirs, dir)
	if fw.closed {
		return nil
	}
	if err := fw.watcher.Remove(dir); err != nil {
		return fmt.Errorf("failed to unwatch directory %s: %w", dir, err)
	}
	return nil
}

// Close stops watching and waits for the event loop to exit. Events and
// Errors are closed afterwards.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the channel of changes to registered files.
func (fw *FileWatcher) Events() <-chan FileChangeEvent { return fw.events }

// Errors returns the channel of watcher errors.
func (fw *FileWatcher) Errors() <-chan error { return fw.errors }

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fe, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fe:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event on a registered file to a
// FileChangeEvent. Events for other files in the directory are dropped.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileChangeEvent, bool) {
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return FileChangeEvent{}, false
	}

	fw.mu.Lock()
	watched := fw.files[path]
	fw.mu.Unlock()
	if !watched {
		return FileChangeEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename is confirmed or refuted when the debounce fires.
		op = OpDelete
	default:
		return FileChangeEvent{}, false
	}

	return FileChangeEvent{Path: path, Op: op, Source: "fsnotify"}, true
}
