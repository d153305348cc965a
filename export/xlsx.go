// Package export writes result tables as spreadsheets and ships them to
// object storage.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/scheme-engine/costing"
)

const (
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	DefaultSheet = "Costing"
)

// WriteXLSX writes tbl to w as a single-sheet workbook: canonical labels in
// row 1, one row per account, GRAND TOTAL last and bold. Empty cells stay
// blank.
func WriteXLSX(w io.Writer, tbl *costing.Table, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	labels := tbl.Labels()
	for i, label := range labels {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, label); err != nil {
			return err
		}
	}
	if len(labels) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(labels), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return err
		}
	}

	for r := 0; r < tbl.Len(); r++ {
		for i, c := range tbl.Row(r) {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := f.SetCellValue(sheet, cell, cellValue(c)); err != nil {
				return fmt.Errorf("failed to write %s: %w", cell, err)
			}
		}
	}
	if tbl.HasGrandTotal() && len(labels) > 0 {
		row := tbl.Len() + 1
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(labels), row)
		if err := f.SetCellStyle(sheet, first, last, bold); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.Write(w)
}

// XLSX renders tbl into memory.
func XLSX(tbl *costing.Table, sheet string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, tbl, sheet); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellValue(c costing.Cell) any {
	if c.Kind == costing.KindText {
		return c.Text
	}
	if !c.Num.Valid {
		return nil
	}
	return c.Num.Decimal.InexactFloat64()
}
