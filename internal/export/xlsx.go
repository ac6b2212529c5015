// xlsx.go - Spreadsheet encoding of the export grid

package export

import (
	"fmt"
	"io"

	"github.com/bosocmputer/document_extract_gemini/internal/column"
	"github.com/xuri/excelize/v2"
)

// SheetName is the single worksheet of the workbook.
const SheetName = "抽出データ"

const (
	fileNameColWidth = 30
	fieldColWidth    = 15
)

// WriteXLSX writes the grid as a one-sheet workbook. Every cell is written as
// a string so the content matches the CSV encoding.
func WriteXLSX(w io.Writer, g *Grid) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	writeRow := func(rowNum int, cells []string) error {
		for i, v := range cells {
			if v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeRow(1, g.Header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i, row := range g.Rows {
		if err := writeRow(i+2, row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", fileNameColWidth); err != nil {
		return fmt.Errorf("xlsx column width: %w", err)
	}
	if g.Width() > 1 {
		if err := f.SetColWidth(SheetName, "B", column.IndexToColumn(g.Width()-1), fieldColWidth); err != nil {
			return fmt.Errorf("xlsx column width: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
