package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pqsync/pqsync/internal/daemon"
)

// EventData is the JSON form of a daemon.Event.
type EventData struct {
	Type     daemon.EventType `json:"type"`
	Time     time.Time        `json:"time"`
	Path     string           `json:"path"`
	Workbook string           `json:"workbook,omitempty"`
	Backup   string           `json:"backup,omitempty"`
	Hash     string           `json:"hash,omitempty"`
	Error    string           `json:"error,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

func newEventData(e daemon.Event) EventData {
	d := EventData{
		Type:     e.Type,
		Time:     e.Time,
		Path:     e.Path,
		Workbook: e.Workbook,
		Backup:   e.Backup,
		Hash:     e.Hash,
		Detail:   e.Detail,
	}
	if e.Err != nil {
		d.Error = e.Err.Error()
	}
	return d
}

// Observe implements daemon.Observer. It records the event for /status
// and broadcasts it to connected clients.
func (s *Server) Observe(e daemon.Event) {
	data := newEventData(e)
	s.recent.add(data)

	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal event", "error", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeEvent, Timestamp: e.Time, Data: raw})
}

// recentEvents is a fixed-size ring of the latest events.
type recentEvents struct {
	mu    sync.Mutex
	size  int
	items []EventData
}

func newRecentEvents(size int) *recentEvents {
	return &recentEvents{size: size}
}

func (r *recentEvents) add(e EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, e)
	if len(r.items) > r.size {
		r.items = r.items[len(r.items)-r.size:]
	}
}

// list returns the events newest first.
func (r *recentEvents) list() []EventData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventData, len(r.items))
	for i, e := range r.items {
		out[len(r.items)-1-i] = e
	}
	return out
}
