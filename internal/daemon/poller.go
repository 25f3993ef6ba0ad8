package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pqsync/pqsync/internal/clock"
)

// Poller is the secondary Source. It compares file size and modification
// time on every tick, for file systems where change notifications are
// unreliable (network shares, some container mounts).
type Poller struct {
	ticker *clock.Ticker
	stat   func(string) (fs.FileInfo, error)
	events chan FileChangeEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	seen   map[string]fileState
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

// NewPoller starts polling every interval. A nil stat uses os.Stat.
func NewPoller(c clock.Clock, interval time.Duration, stat func(string) (fs.FileInfo, error)) *Poller {
	if stat == nil {
		stat = os.Stat
	}
	p := &Poller{
		ticker: c.NewTicker(interval),
		stat:   stat,
		events: make(chan FileChangeEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		seen:   make(map[string]fileState),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Add starts polling path.
func (p *Poller) Add(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("poller closed")
	}
	p.seen[path] = p.snapshot(path)
	return nil
}

// Remove stops polling path.
func (p *Poller) Remove(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, path)
	return nil
}

// Close stops polling. Events and Errors are closed afterwards.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.ticker.Stop()
	close(p.done)
	p.wg.Wait()
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of detected changes.
func (p *Poller) Events() <-chan FileChangeEvent { return p.events }

// Errors returns the channel of stat errors other than missing files.
func (p *Poller) Errors() <-chan error { return p.errors }

func (p *Poller) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			for _, ev := range p.scan() {
				select {
				case p.events <- ev:
				case <-p.done:
					return
				}
			}
		}
	}
}

func (p *Poller) scan() []FileChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []FileChangeEvent
	for path, prev := range p.seen {
		cur := p.snapshot(path)
		p.seen[path] = cur

		switch {
		case prev.exists && !cur.exists:
			out = append(out, FileChangeEvent{Path: path, Op: OpDelete, Source: "poll"})
		case !prev.exists && cur.exists:
			out = append(out, FileChangeEvent{Path: path, Op: OpCreate, Source: "poll"})
		case cur.exists && (cur.size != prev.size || !cur.modTime.Equal(prev.modTime)):
			out = append(out, FileChangeEvent{Path: path, Op: OpModify, Source: "poll"})
		}
	}
	return out
}

// snapshot must be called with p.mu held.
func (p *Poller) snapshot(path string) fileState {
	info, err := p.stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			select {
			case p.errors <- fmt.Errorf("poll %s: %w", path, err):
			default:
			}
		}
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}
