package mcode

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHeader string
		wantBody   string
	}{
		{
			name:       "extracted file",
			raw:        "// Power Query extracted from: Sales.xlsx\n// Extracted on: x\n\nsection Section1;\nshared Q = 1;\n",
			wantHeader: "// Power Query extracted from: Sales.xlsx\n// Extracted on: x\n\n",
			wantBody:   "section Section1;\nshared Q = 1;",
		},
		{
			name:       "no header",
			raw:        "section Section1;\r\nshared Q = 1;",
			wantHeader: "",
			wantBody:   "section Section1;\r\nshared Q = 1;",
		},
		{
			name:       "indented declaration and quoted name",
			raw:        "// note\n  section #\"My Section\" ;\nshared Q = 1;",
			wantHeader: "// note\n",
			wantBody:   "section #\"My Section\" ;\nshared Q = 1;",
		},
		{
			name:       "section inside a comment line is not a declaration",
			raw:        "// section Fake;\nsection Real;\nshared Q = 1;",
			wantHeader: "// section Fake;\n",
			wantBody:   "section Real;\nshared Q = 1;",
		},
		{
			name:       "first declaration wins",
			raw:        "section A;\nsection B;",
			wantHeader: "",
			wantBody:   "section A;\nsection B;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := Strip(tt.raw)
			if header != tt.wantHeader {
				t.Errorf("header = %q, want %q", header, tt.wantHeader)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if !strings.HasPrefix(tt.raw, header) || strings.TrimSpace(tt.raw[len(header):]) != body {
				t.Errorf("header + body does not reassemble the input")
			}
		})
	}
}

// A file with no section declaration is synced as a whole rather than
// rejected; only its leading comment lines are dropped.
func TestStripWithoutSection(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHeader string
		wantBody   string
	}{
		{
			name:       "single expression",
			raw:        "\n  let\n    Source = 1\n  in\n    Source\n",
			wantHeader: "\n",
			wantBody:   "let\n    Source = 1\n  in\n    Source",
		},
		{
			name:       "header then expression",
			raw:        "// Power Query extracted from: Sales.xlsx\r\n\r\nlet x = 1 // inline\nin x",
			wantHeader: "// Power Query extracted from: Sales.xlsx\r\n\r\n",
			wantBody:   "let x = 1 // inline\nin x",
		},
		{
			name:       "comments only",
			raw:        "// Power Query extracted from: Sales.xlsx\n// Extracted on: x\n\n  \n",
			wantHeader: "// Power Query extracted from: Sales.xlsx\n// Extracted on: x\n\n  \n",
			wantBody:   "",
		},
		{
			name:       "comment without newline",
			raw:        "  // nothing here",
			wantHeader: "  // nothing here",
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body := Strip(tt.raw)
			if header != tt.wantHeader {
				t.Errorf("header = %q, want %q", header, tt.wantHeader)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if HasSection(tt.raw) {
				t.Error("HasSection() = true for text without a declaration")
			}
		})
	}
}

func TestWrapIsDiscardedByStrip(t *testing.T) {
	formula := "section Section1;\nshared Query1 = let Source = 1 in Source;"
	raw := Wrap(formula, Metadata{
		Workbook:    filepath.Join("data", "Sales.xlsx"),
		Part:        "customXml/item1.xml",
		ExtractedAt: time.Date(2025, 7, 11, 10, 30, 0, 0, time.UTC),
	})

	if !strings.HasPrefix(raw, "// Power Query extracted from: Sales.xlsx\n") {
		t.Errorf("unexpected header: %q", raw)
	}
	if !strings.Contains(raw, "// Location: customXml/item1.xml (DataMashup format)\n") {
		t.Errorf("missing location line: %q", raw)
	}
	if !strings.Contains(raw, "// Extracted on: 2025-07-11T10:30:00.000Z\n") {
		t.Errorf("missing timestamp line: %q", raw)
	}

	_, body := Strip(raw)
	if body != formula {
		t.Errorf("Strip(Wrap(f)) = %q, want %q", body, formula)
	}
}

func TestWorkbookCandidate(t *testing.T) {
	dir := filepath.Join("home", "me")
	tests := []struct {
		mPath   string
		want    string
		wantErr bool
	}{
		{filepath.Join(dir, "Sales.xlsx_PowerQuery.m"), filepath.Join(dir, "Sales.xlsx"), false},
		{filepath.Join(dir, "file with spaces.xlsm_PowerQuery.m"), filepath.Join(dir, "file with spaces.xlsm"), false},
		{filepath.Join(dir, "Sales.m"), "", true},
		{filepath.Join(dir, "_PowerQuery.m"), "", true},
		{filepath.Join(dir, "Sales.xlsx_powerquery.m"), "", true},
	}

	for _, tt := range tests {
		got, err := WorkbookCandidate(tt.mPath)
		if tt.wantErr {
			if !errors.Is(err, ErrNotSidecar) {
				t.Errorf("WorkbookCandidate(%q) error = %v, want ErrNotSidecar", tt.mPath, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("WorkbookCandidate(%q) = %q, %v; want %q", tt.mPath, got, err, tt.want)
		}
	}
}

func TestSidecarPathRoundTrip(t *testing.T) {
	wb := filepath.Join("x", "Book.XLSB")
	m := SidecarPath(wb)
	if filepath.Base(m) != "Book.XLSB_PowerQuery.m" {
		t.Errorf("SidecarPath = %q", m)
	}
	back, err := WorkbookCandidate(m)
	if err != nil || back != wb {
		t.Errorf("WorkbookCandidate(SidecarPath) = %q, %v", back, err)
	}
	if !IsWorkbook(wb) {
		t.Error("IsWorkbook is case-sensitive")
	}
}
