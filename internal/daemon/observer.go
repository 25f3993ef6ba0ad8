package daemon

import "time"

// EventType identifies an orchestrator event.
type EventType string

const (
	EventWatchStarted     EventType = "watch_started"
	EventWatchStopped     EventType = "watch_stopped"
	EventSyncStarted      EventType = "sync_started"
	EventSyncCompleted    EventType = "sync_completed"
	EventSyncSkipped      EventType = "sync_skipped"
	EventSyncFailed       EventType = "sync_failed"
	EventExtractCompleted EventType = "extract_completed"
	EventRestoreCompleted EventType = "restore_completed"
)

// Details attached to events that share a type.
const (
	// DetailDeleted marks a sync completed by SyncAndDelete.
	DetailDeleted = "deleted"
	// DetailExtract marks a failed extraction.
	DetailExtract = "extract"
)

// Event reports something the orchestrator did.
type Event struct {
	Type     EventType
	Time     time.Time
	Path     string
	Workbook string
	Backup   string
	Hash     string
	Err      error
	// Detail is a short human-readable note, e.g. why a watch stopped.
	Detail string
}

// Observer receives orchestrator events. Observe is called on the event
// loop and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
