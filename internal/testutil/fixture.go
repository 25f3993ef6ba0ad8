// Package testutil builds workbook fixtures for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/pqsync/pqsync/internal/mashup"
	"github.com/pqsync/pqsync/internal/textenc"
	"github.com/pqsync/pqsync/internal/workbook"
)

// SampleFormula is a typical single-query section document.
const SampleFormula = "section Section1;\r\n\r\nshared Query1 = let\r\n    Source = Excel.CurrentWorkbook(){[Name=\"Table1\"]}[Content]\r\nin\r\n    Source;"

// Option adjusts a fixture.
type Option func(*fixture)

type fixture struct {
	encoding textenc.Encoding
	part     string
	extra    map[string][]byte
}

// WithEncoding stores the DataMashup part in enc instead of UTF-16LE.
func WithEncoding(enc textenc.Encoding) Option {
	return func(f *fixture) { f.encoding = enc }
}

// WithPartName stores the DataMashup part under name.
func WithPartName(name string) Option {
	return func(f *fixture) { f.part = name }
}

// WithPart adds an extra part.
func WithPart(name string, data []byte) Option {
	return func(f *fixture) { f.extra[name] = data }
}

// Workbook returns the bytes of a workbook with one sheet and a
// DataMashup part holding formula. An empty formula omits the part.
func Workbook(t testing.TB, formula string, opts ...Option) []byte {
	t.Helper()

	f := &fixture{
		encoding: textenc.UTF16LE,
		part:     "customXml/item1.xml",
		extra:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(f)
	}

	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetCellValue("Sheet1", "A1", "Region"); err != nil {
		t.Fatalf("SetCellValue failed: %v", err)
	}
	if err := book.SetCellValue("Sheet1", "B1", 42); err != nil {
		t.Fatalf("SetCellValue failed: %v", err)
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}

	c, err := workbook.Open(buf.Bytes())
	if err != nil {
		t.Fatalf("Open fixture failed: %v", err)
	}
	if formula != "" {
		payload, err := mashup.Build(formula)
		if err != nil {
			t.Fatalf("Build payload failed: %v", err)
		}
		c.Put(f.part, textenc.Encode(mashup.Document(payload), f.encoding))
		c.Put("customXml/itemProps1.xml", []byte(`<?xml version="1.0" encoding="UTF-8" standalone="no"?><ds:datastoreItem ds:itemID="{00000000-0000-0000-0000-000000000000}" xmlns:ds="http://schemas.openxmlformats.org/officeDocument/2006/customXml"><ds:schemaRefs/></ds:datastoreItem>`))
	}
	for name, data := range f.extra {
		c.Put(name, data)
	}

	out, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	return out
}

// WriteWorkbook writes a fixture into dir and returns its path.
func WriteWorkbook(t testing.TB, dir, name, formula string, opts ...Option) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Workbook(t, formula, opts...), 0o644); err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return path
}

// Formula reads the formula stored in a workbook file.
func Formula(t testing.TB, path string) string {
	t.Helper()
	c, err := workbook.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	part, err := workbook.Locate(c, workbook.DefaultPrefix)
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	h, err := mashup.Binary{}.Parse(part.Text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return h.Formula()
}
