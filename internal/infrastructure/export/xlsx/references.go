package xlsx

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

const (
	SheetName   = "References"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{
	"Cite key", "Title", "Authors", "Year", "Has PDF", "Attachment",
	"Status", "Document ID", "Chunks", "Error", "Orphan",
}

// WriteReferences renders the reconciled reference list as a workbook with
// a frozen, filterable header row.
func WriteReferences(w io.Writer, refs []domain.ReferencePaper) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, ref := range refs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			ref.CiteKey, ref.Title, ref.Authors, yearValue(ref.Year), yesNo(ref.HasPDF), ref.AttachmentName,
			string(ref.Status), ref.DocumentID, ref.ChunkCount, ref.Error, yesNo(ref.Orphan),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.AutoFilter(SheetName, "A1:"+lastCol+strconv.Itoa(len(refs)+1), nil); err != nil {
		return fmt.Errorf("add filter: %w", err)
	}
	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", "C", 48)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// yearValue keeps four-digit years numeric so the column sorts.
func yearValue(year string) any {
	if n, err := strconv.Atoi(year); err == nil {
		return n
	}
	return year
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
