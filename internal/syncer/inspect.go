package syncer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pqsync/pqsync/internal/workbook"
)

// InspectReport is written to debug_info.json by Inspect.
type InspectReport struct {
	Workbook    string       `json:"workbook"`
	OutputDir   string       `json:"outputDir"`
	InspectedAt time.Time    `json:"inspectedAt"`
	Parts       []string     `json:"allParts"`
	CustomXML   []PartReport `json:"customXmlParts"`
	QueryParts  []string     `json:"queryRelatedParts"`
	Sheets      []string     `json:"sheets,omitempty"`
	SheetError  string       `json:"sheetError,omitempty"`
	Located     string       `json:"dataMashupPart,omitempty"`
	LocateError string       `json:"locateError,omitempty"`
	FormulaSize int          `json:"formulaSize,omitempty"`
	CodecError  string       `json:"codecError,omitempty"`
}

// PartReport describes one custom XML part.
type PartReport struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	Dump     string `json:"dump"`
}

// DefaultInspectDir is where Inspect writes when no directory is given:
// Sales.xlsx -> Sales_debug_extraction next to the workbook.
func DefaultInspectDir(workbookPath string) string {
	base := strings.TrimSuffix(filepath.Base(workbookPath), filepath.Ext(workbookPath))
	return filepath.Join(filepath.Dir(workbookPath), base+"_debug_extraction")
}

var queryKeywords = []string{"query", "connection", "mashup", "datamashup", "powerquery"}

// Inspect implements Syncer.Inspect.
func (s *fileSyncer) Inspect(ctx context.Context, workbookPath, outDir string) (*InspectReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if outDir == "" {
		outDir = DefaultInspectDir(workbookPath)
	}

	data, err := s.cfg.FS.ReadFile(workbookPath)
	if err != nil {
		return nil, newError(ErrRead, "inspect", workbookPath, err)
	}
	container, err := workbook.Open(data)
	if err != nil {
		return nil, newError(ErrMalformed, "inspect", workbookPath, err)
	}
	if err := s.cfg.FS.MkdirAll(outDir, 0o755); err != nil {
		return nil, newError(ErrWrite, "inspect", outDir, err)
	}

	report := &InspectReport{
		Workbook:    workbookPath,
		OutputDir:   outDir,
		InspectedAt: s.cfg.Clock.Now().UTC(),
		Parts:       container.Parts(),
	}

	for _, name := range report.Parts {
		lower := strings.ToLower(name)
		for _, kw := range queryKeywords {
			if strings.Contains(lower, kw) {
				report.QueryParts = append(report.QueryParts, name)
				break
			}
		}
	}

	for _, part := range workbook.Scan(container, s.cfg.Prefix) {
		dump := strings.ReplaceAll(part.Name, "/", "_") + ".txt"
		pr := PartReport{
			Name:     part.Name,
			Size:     len(part.Raw),
			Encoding: part.Encoding.String(),
			State:    part.State.String(),
			Reason:   part.Reason,
			Dump:     dump,
		}
		if err := s.cfg.FS.WriteFile(filepath.Join(outDir, dump), []byte(part.Text), 0o644); err != nil {
			return nil, newError(ErrWrite, "inspect", outDir, err)
		}
		report.CustomXML = append(report.CustomXML, pr)
	}

	if sheets, err := workbook.SheetNames(data); err != nil {
		report.SheetError = err.Error()
	} else {
		report.Sheets = sheets
	}

	if part, err := workbook.Locate(container, s.cfg.Prefix); err != nil {
		report.LocateError = err.Error()
	} else {
		report.Located = part.Name
		handle, err := s.cfg.Codec.Parse(part.Text)
		switch {
		case err != nil:
			report.CodecError = err.Error()
		case handle == nil:
			report.CodecError = "codec returned no handle"
		default:
			report.FormulaSize = len(handle.Formula())
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, newError(ErrWrite, "inspect", outDir, err)
	}
	if err := s.cfg.FS.WriteFile(filepath.Join(outDir, "debug_info.json"), out, 0o644); err != nil {
		return nil, newError(ErrWrite, "inspect", outDir, err)
	}

	s.logger.Info("inspected workbook", "workbook", workbookPath, "output", outDir,
		"custom_xml_parts", len(report.CustomXML), "located", report.Located)
	return report, nil
}
