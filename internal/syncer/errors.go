package syncer

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by a Syncer matches exactly one of
// these with errors.Is:
//
//	if errors.Is(err, syncer.ErrLocked) {
//	    // offer retry
//	}
var (
	// ErrNotFound means the workbook has no DataMashup part. It is
	// informational: the workbook has no Power Query.
	ErrNotFound = errors.New("no Power Query found")

	// ErrMalformed means a DataMashup-shaped part failed validation, or
	// the workbook is not a valid package. Nothing was written.
	ErrMalformed = errors.New("malformed workbook content")

	// ErrLocked means the workbook is not currently writable.
	ErrLocked = errors.New("workbook is locked")

	// ErrCodec means the DataMashup codec rejected the input or produced
	// no output. Nothing was written.
	ErrCodec = errors.New("DataMashup codec failure")

	// ErrWrite means writing the rewritten workbook failed. Error.Backup
	// names the backup taken before the write, if any.
	ErrWrite = errors.New("failed to write workbook")

	// ErrAssociation means no workbook could be resolved for a .m file.
	// Nothing was written and no file picker may be offered.
	ErrAssociation = errors.New("no workbook associated with .m file")

	// ErrEmptyFormula means the .m file has no formula text.
	ErrEmptyFormula = errors.New(".m file contains no formula")

	// ErrBackup means the backup before a write could not be created, so
	// the write was not attempted.
	ErrBackup = errors.New("backup failed")

	// ErrRead means a source file could not be read.
	ErrRead = errors.New("failed to read file")
)

// Error carries the failure kind and the file involved.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Op is the operation: extract, sync, restore or inspect.
	Op string
	// Path is the file the operation was acting on.
	Path string
	// Backup is the backup taken before a failed write, if any.
	Backup string
	// Err is the underlying cause; may be nil.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying later may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLocked)
}

// IsRestorable reports whether err is a write failure with a backup that
// can be restored, and returns the backup path.
func IsRestorable(err error) (string, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrWrite || e.Backup == "" {
		return "", false
	}
	return e.Backup, true
}

// IsSafetyStop reports whether err stopped a sync before any write for a
// reason that needs the user's attention rather than a retry.
func IsSafetyStop(err error) bool {
	return errors.Is(err, ErrAssociation) || errors.Is(err, ErrMalformed)
}

func newError(kind error, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}
