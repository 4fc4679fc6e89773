// Package xlsx provides a Normaliser for Excel workbooks such as fee tables
// and waste collection schedules.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles OOXML workbooks.
type Normaliser struct{}

// New creates a new workbook normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel.sheet.macroenabled.12",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders every sheet as a section. The first non-empty row of a
// sheet is its header; later rows are written as "Header: value" pairs so a
// chunk cut from the middle of a table still carries its column names.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", domain.ErrInvalidInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sections := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		if body := renderRows(rows); body != "" {
			sections = append(sections, "## "+sheet+"\n\n"+body)
		}
	}

	title := ""
	if props, err := f.GetDocProps(); err == nil && props != nil {
		title = strings.TrimSpace(props.Title)
	}
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "xlsx"
	metadata["sheet_count"] = len(sheets)

	return &domain.NormaliseResult{
		Title:    title,
		Type:     domain.DocumentTypeSpreadsheet,
		Text:     strings.Join(sections, "\n\n"),
		Metadata: metadata,
	}, nil
}

func renderRows(rows [][]string) string {
	var header []string
	var lines []string
	for _, row := range rows {
		cells := trimCells(row)
		if len(cells) == 0 {
			continue
		}
		if header == nil {
			header = cells
			lines = append(lines, strings.Join(cells, " | "))
			continue
		}
		lines = append(lines, renderRecord(header, cells))
	}
	return strings.Join(lines, "\n")
}

func renderRecord(header, cells []string) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		if i < len(header) && header[i] != "" {
			parts = append(parts, header[i]+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, "; ")
}

// trimCells normalises whitespace and drops trailing empty cells.
func trimCells(row []string) []string {
	cells := make([]string, len(row))
	last := -1
	for i, cell := range row {
		cells[i] = strings.Join(strings.Fields(cell), " ")
		if cells[i] != "" {
			last = i
		}
	}
	return cells[:last+1]
}
