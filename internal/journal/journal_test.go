package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pqsync/pqsync/internal/daemon"
	"github.com/pqsync/pqsync/internal/logging"
)

// testJournal opens a journal in a temporary directory.
func testJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return j
}

func TestOpenCreatesSchema(t *testing.T) {
	j := testJournal(t)

	var count int
	err := j.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='entries'`).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Error("entries table does not exist")
	}

	var mode string
	if err := j.conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := j.Record(context.Background(), Entry{Op: OpExtract, Outcome: OutcomeOK, Path: "/a.m"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer j.Close()
	if n, err := j.Count(context.Background()); err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1", n, err)
	}
}

func TestRecordAndList(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 11, 10, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Time: base, Op: OpExtract, Outcome: OutcomeOK, Path: "/d/Sales.xlsx_PowerQuery.m", Workbook: "/d/Sales.xlsx", Hash: "h1"},
		{Time: base.Add(time.Minute), Op: OpSync, Outcome: OutcomeOK, Path: "/d/Sales.xlsx_PowerQuery.m", Workbook: "/d/Sales.xlsx", Backup: "/d/b.xlsx"},
		{Time: base.Add(2 * time.Minute), Op: OpSync, Outcome: OutcomeFailed, Path: "/d/Other.xlsx_PowerQuery.m", Error: "workbook is locked"},
	}
	for _, e := range entries {
		if _, err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantOps []string
	}{
		{"all newest first", Filter{}, []string{OpSync, OpSync, OpExtract}},
		{"limit", Filter{Limit: 1}, []string{OpSync}},
		{"by workbook", Filter{Path: "/d/Sales.xlsx"}, []string{OpSync, OpExtract}},
		{"since", Filter{Since: base.Add(90 * time.Second)}, []string{OpSync}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if len(got) != len(tt.wantOps) {
				t.Fatalf("List() returned %d entries, want %d", len(got), len(tt.wantOps))
			}
			for i, op := range tt.wantOps {
				if got[i].Op != op {
					t.Errorf("entry %d op = %s, want %s", i, got[i].Op, op)
				}
			}
		})
	}

	all, _ := j.List(ctx, Filter{})
	if all[0].Error != "workbook is locked" || !all[2].Time.Equal(base) {
		t.Errorf("entries not round-tripped: %+v", all)
	}
}

func TestRecordRequiresOp(t *testing.T) {
	j := testJournal(t)
	if _, err := j.Record(context.Background(), Entry{Path: "/a.m"}); err == nil {
		t.Error("Record() accepted an entry without op")
	}
}

func TestEntryFor(t *testing.T) {
	tests := []struct {
		event       daemon.Event
		wantOp      string
		wantOutcome string
		journaled   bool
	}{
		{daemon.Event{Type: daemon.EventSyncStarted}, "", "", false},
		{daemon.Event{Type: daemon.EventSyncCompleted}, OpSync, OutcomeOK, true},
		{daemon.Event{Type: daemon.EventSyncCompleted, Detail: daemon.DetailDeleted}, OpSyncDelete, OutcomeOK, true},
		{daemon.Event{Type: daemon.EventSyncSkipped}, OpSync, OutcomeSkipped, true},
		{daemon.Event{Type: daemon.EventSyncFailed, Err: errors.New("boom")}, OpSync, OutcomeFailed, true},
		{daemon.Event{Type: daemon.EventSyncFailed, Detail: daemon.DetailExtract}, OpExtract, OutcomeFailed, true},
		{daemon.Event{Type: daemon.EventExtractCompleted}, OpExtract, OutcomeOK, true},
		{daemon.Event{Type: daemon.EventRestoreCompleted}, OpRestore, OutcomeOK, true},
		{daemon.Event{Type: daemon.EventWatchStopped}, OpUnwatch, OutcomeOK, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Type)+tt.event.Detail, func(t *testing.T) {
			got, ok := EntryFor(tt.event)
			if ok != tt.journaled {
				t.Fatalf("journaled = %v, want %v", ok, tt.journaled)
			}
			if got.Op != tt.wantOp || got.Outcome != tt.wantOutcome {
				t.Errorf("EntryFor() = %s/%s, want %s/%s", got.Op, got.Outcome, tt.wantOp, tt.wantOutcome)
			}
		})
	}
}

func TestObserverFlushesOnClose(t *testing.T) {
	j := testJournal(t)
	obs := NewObserver(j, logging.Discard())

	for i := 0; i < 10; i++ {
		obs.Observe(daemon.Event{Type: daemon.EventSyncCompleted, Path: "/d/a.m", Time: time.Now()})
	}
	obs.Observe(daemon.Event{Type: daemon.EventSyncStarted, Path: "/d/a.m"})
	obs.Close()
	obs.Close()

	// Events after Close are ignored.
	obs.Observe(daemon.Event{Type: daemon.EventSyncCompleted, Path: "/d/a.m"})

	if n, err := j.Count(context.Background()); err != nil || n != 10 {
		t.Errorf("Count() = %d, %v; want 10", n, err)
	}
}
