// Package syncer implements the extract and sync pipelines between a
// workbook's DataMashup part and its .m sidecar file.
//
// A Syncer performs one operation per call and never prompts. Decisions
// that need the user (retry a locked workbook, restore after a failed
// write, confirm a delete) are left to the caller, which inspects the
// returned *Error.
package syncer

import (
	"context"

	"github.com/pqsync/pqsync/internal/backup"
)

// Syncer moves M formulas between workbooks and .m files.
type Syncer interface {
	// Extract reads the formula from workbookPath and writes it, with an
	// informational header, to the workbook's sidecar file.
	//
	// Returns an error matching ErrNotFound when the workbook has no
	// Power Query, ErrMalformed for a damaged DataMashup part and ErrCodec
	// when the payload cannot be decoded.
	//
	// Example:
	//   res, err := s.Extract(ctx, "/data/Sales.xlsx")
	//   // res.MPath == "/data/Sales.xlsx_PowerQuery.m"
	Extract(ctx context.Context, workbookPath string) (*ExtractResult, error)

	// Sync writes the formula in mPath back into its workbook.
	//
	// The workbook is opts.Workbook when set, otherwise it is derived from
	// the sidecar name. Everything is prepared in memory before the
	// workbook is touched; a backup is taken immediately before the write
	// when enabled. On failure nothing is written except in the ErrWrite
	// case, where Error.Backup names the backup to restore.
	Sync(ctx context.Context, mPath string, opts SyncOptions) (*SyncResult, error)

	// SyncAndDelete syncs mPath and deletes it once the sync succeeded.
	SyncAndDelete(ctx context.Context, mPath string, opts SyncOptions) (*SyncResult, error)

	// Restore copies a backup over workbookPath. With an empty
	// backupPath the newest backup is used.
	Restore(ctx context.Context, workbookPath, backupPath string) (*backup.Record, error)

	// Inspect dumps the workbook's custom XML parts and a debug_info.json
	// report into outDir, for diagnosing workbooks that fail to extract.
	Inspect(ctx context.Context, workbookPath, outDir string) (*InspectReport, error)

	// Resolve returns the workbook a sidecar belongs to, or an error
	// matching ErrAssociation.
	Resolve(mPath string) (string, error)
}

// SyncOptions adjusts a single Sync call.
type SyncOptions struct {
	// Workbook is the already resolved target. Empty means derive it.
	Workbook string
	// Force syncs even when the formula is unchanged since the last
	// extract or sync.
	Force bool
}

// ExtractResult describes a completed extraction.
type ExtractResult struct {
	Workbook string
	MPath    string
	Part     string
	Formula  string
	Hash     string
}

// SyncResult describes a completed sync.
type SyncResult struct {
	Workbook string
	MPath    string
	Part     string
	// Backup is the backup taken before the write; empty if disabled.
	Backup string
	// Unchanged is set when the formula matched the last synced one and
	// nothing was done.
	Unchanged bool
	Hash      string
	Bytes     int
}
