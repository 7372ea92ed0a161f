// Package export writes a report and its regulatory changes as JSON or as
// an XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/regintel/internal/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a file extension or format name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Document is the exported form of a report.
type Document struct {
	Report  model.Report             `json:"report"`
	Changes []model.RegulatoryChange `json:"changes"`
}

// Write encodes the report and changes to w in format f.
func Write(w io.Writer, f Format, r model.Report, changes []model.RegulatoryChange) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, r, changes)
	case FormatXLSX:
		return WriteXLSX(w, r, changes)
	default:
		return eris.Errorf("export: unsupported format %q", f)
	}
}

// WriteJSON writes an indented JSON Document.
func WriteJSON(w io.Writer, r model.Report, changes []model.RegulatoryChange) error {
	if changes == nil {
		changes = []model.RegulatoryChange{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(Document{Report: r, Changes: changes}), "export: encode json")
}

// changeHeader is the column layout of the Changes sheet.
var changeHeader = []string{
	"Title", "Summary", "Impact Assessment", "Risk Level", "Confidence",
	"Compliance Requirements", "Implementation Timeline", "Relevant Sections",
	"Affected Areas", "Action Items", "Source Title", "Source URL", "Source Type",
	"Rule-based", "Analyzed At",
}

// WriteXLSX writes a workbook with a Report summary sheet and a Changes
// sheet holding one row per change. List fields are joined with "; ".
func WriteXLSX(w io.Writer, r model.Report, changes []model.RegulatoryChange) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Report")
	if err != nil {
		return eris.Wrap(err, "export: add report sheet")
	}
	for _, kv := range reportRows(r, len(changes)) {
		addRow(summary, kv...)
	}

	sheet, err := f.AddSheet("Changes")
	if err != nil {
		return eris.Wrap(err, "export: add changes sheet")
	}
	addRow(sheet, changeHeader...)
	for _, c := range changes {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Title)
		row.AddCell().SetString(c.Summary)
		row.AddCell().SetString(c.ImpactAssessment)
		row.AddCell().SetString(string(c.RiskLevel))
		row.AddCell().SetFloat(c.ConfidenceScore)
		row.AddCell().SetString(strings.Join(c.ComplianceRequirements, "; "))
		row.AddCell().SetString(c.ImplementationTimeline)
		row.AddCell().SetString(strings.Join(c.RelevantSections, "; "))
		row.AddCell().SetString(strings.Join(c.AffectedAreas, "; "))
		row.AddCell().SetString(strings.Join(c.ActionItems, "; "))
		row.AddCell().SetString(c.SourceTitle)
		row.AddCell().SetString(c.SourceURL)
		row.AddCell().SetString(string(c.SourceType))
		row.AddCell().SetBool(c.Fallback)
		row.AddCell().SetString(c.AnalyzedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func reportRows(r model.Report, n int) [][]string {
	rows := [][]string{
		{"Report ID", r.ID},
		{"Title", r.Title},
		{"Company Profile", r.CompanyProfileID},
		{"Analysis Type", string(r.AnalysisType)},
		{"Status", string(r.Status)},
		{"Created At", r.CreatedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Changes", fmt.Sprint(n)},
	}
	if r.CompletedAt != nil {
		rows = append(rows, []string{"Completed At", r.CompletedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	if r.Scope != "" {
		rows = append(rows, []string{"Scope", r.Scope})
	}
	if r.Error != "" {
		rows = append(rows, []string{"Error", r.Error})
	}
	return rows
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
