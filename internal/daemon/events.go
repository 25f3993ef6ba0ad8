package daemon

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates the file appeared.
	OpCreate EventOp = iota
	// OpModify indicates the file was written.
	OpModify
	// OpDelete indicates the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileChangeEvent is the normalized event every watcher backend emits.
type FileChangeEvent struct {
	// Path is the absolute path of the watched .m file.
	Path string
	// Op is the operation that occurred.
	Op EventOp
	// Source names the backend that saw the change.
	Source string
}

// Source is a watcher backend. Add and Remove register individual files;
// changes to registered files arrive on Events.
type Source interface {
	Add(path string) error
	Remove(path string) error
	Events() <-chan FileChangeEvent
	Errors() <-chan error
	Close() error
}
