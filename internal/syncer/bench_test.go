package syncer

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/pqsync/pqsync/internal/clock"
	"github.com/pqsync/pqsync/internal/logging"
	"github.com/pqsync/pqsync/internal/mcode"
	"github.com/pqsync/pqsync/internal/testutil"
)

// largeFormula returns a section document with n queries.
func largeFormula(n int) string {
	var b strings.Builder
	b.WriteString("section Section1;\r\n")
	for i := 0; i < n; i++ {
		b.WriteString("\r\nshared Query")
		b.WriteString(strings.Repeat("x", i%7+1))
		b.WriteString(" = let Source = Excel.CurrentWorkbook(){[Name=\"Table1\"]}[Content] in Source;")
	}
	return b.String()
}

func benchSyncer() Syncer {
	return New(Config{Clock: clock.Fake(epoch), Logger: logging.Discard()})
}

func BenchmarkExtract(b *testing.B) {
	dir := b.TempDir()
	wb := testutil.WriteWorkbook(b, dir, "Sales.xlsx", largeFormula(200))
	s := benchSyncer()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Extract(ctx, wb); err != nil {
			b.Fatalf("Extract failed: %v", err)
		}
	}
}

func BenchmarkSync(b *testing.B) {
	dir := b.TempDir()
	wb := testutil.WriteWorkbook(b, dir, "Sales.xlsx", largeFormula(200))
	mPath := mcode.SidecarPath(wb)
	if err := os.WriteFile(mPath, []byte(largeFormula(201)), 0o644); err != nil {
		b.Fatalf("failed to write .m file: %v", err)
	}
	s := benchSyncer()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Sync(ctx, mPath, SyncOptions{Force: true}); err != nil {
			b.Fatalf("Sync failed: %v", err)
		}
	}
}

func BenchmarkSyncUnchanged(b *testing.B) {
	dir := b.TempDir()
	wb := testutil.WriteWorkbook(b, dir, "Sales.xlsx", largeFormula(200))
	s := benchSyncer()
	ctx := context.Background()
	res, err := s.Extract(ctx, wb)
	if err != nil {
		b.Fatalf("Extract failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := s.Sync(ctx, res.MPath, SyncOptions{})
		if err != nil || !out.Unchanged {
			b.Fatalf("Sync = %+v, %v; want unchanged", out, err)
		}
	}
}
