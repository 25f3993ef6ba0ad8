package daemon

import (
	"time"

	"github.com/pqsync/pqsync/internal/clock"
)

// extractionGuard remembers .m files pqsync itself just wrote, so the
// watcher events caused by that write do not trigger a sync back into the
// workbook. Entries expire after ttl. It is owned by the event loop and is
// not safe for concurrent use.
type extractionGuard struct {
	clock clock.Clock
	ttl   time.Duration
	until map[string]time.Time
}

func newExtractionGuard(c clock.Clock, ttl time.Duration) *extractionGuard {
	return &extractionGuard{clock: c, ttl: ttl, until: make(map[string]time.Time)}
}

func (g *extractionGuard) add(path string) {
	g.until[path] = g.clock.Now().Add(g.ttl)
}

func (g *extractionGuard) contains(path string) bool {
	until, ok := g.until[path]
	if !ok {
		return false
	}
	if g.clock.Now().Before(until) {
		return true
	}
	delete(g.until, path)
	return false
}
