package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the report.
const SheetName = "TSA Report"

// WriteXLSX writes doc as a single-sheet workbook: header fields, the segment
// table with significant findings highlighted, conclusions and footer.
func WriteXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	styles, err := newSheetStyles(f)
	if err != nil {
		return err
	}

	sw := &sheetWriter{f: f, row: 1}
	sw.put(styles.title, doc.Title)
	sw.row++
	sw.pair("Doctor", doc.Doctor)
	sw.pair("Report date", doc.ReportDate)
	sw.pair("Patient", doc.Patient)
	sw.pair("Date of birth", doc.BirthDate)
	sw.pair("Clinical indication", doc.Indication)
	sw.pair("Equipment", doc.Equipment)
	sw.pair("Probe", doc.Probe)
	sw.pair("Angle", doc.Angle)
	sw.pair("Stenosis analysis", doc.Method)
	sw.row++

	sw.put(styles.header, "Segment", "Right", "Left")
	for _, r := range doc.Rows {
		sw.put(styles.cell, r.Label, strings.Join(r.Right.Lines(), "\n"), strings.Join(r.Left.Lines(), "\n"))
		sw.styleIf(r.Right.Style == StyleSignificant, 2, styles.significant)
		sw.styleIf(r.Left.Style == StyleSignificant, 3, styles.significant)
	}
	sw.row++

	if doc.GeneralNotes != "" {
		sw.pair("General notes", doc.GeneralNotes)
	}
	sw.pair("Diagnostic conclusions", doc.Conclusions)
	sw.pair("Signature", doc.Signature)
	sw.row++
	for _, line := range doc.Footer {
		sw.put(0, line)
	}
	if sw.err != nil {
		return sw.err
	}

	for col, width := range map[string]float64{"A": 28, "B": 45, "C": 45} {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

type sheetStyles struct {
	title, header, cell, significant int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
	wrap := &excelize.Alignment{Vertical: "top", WrapText: true}

	var s sheetStyles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, fmt.Errorf("create title style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#F1F5F9"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return s, fmt.Errorf("create header style: %w", err)
	}
	if s.cell, err = f.NewStyle(&excelize.Style{Border: border, Alignment: wrap}); err != nil {
		return s, fmt.Errorf("create cell style: %w", err)
	}
	if s.significant, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Underline: "single", Color: "#991B1B"},
		Border:    border,
		Alignment: wrap,
	}); err != nil {
		return s, fmt.Errorf("create significant style: %w", err)
	}
	return s, nil
}

// sheetWriter appends rows to SheetName, keeping the first error.
type sheetWriter struct {
	f   *excelize.File
	row int
	err error
}

func (sw *sheetWriter) put(style int, values ...string) {
	if sw.err != nil {
		return
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, sw.row)
		if err != nil {
			sw.err = fmt.Errorf("cell name: %w", err)
			return
		}
		if err := sw.f.SetCellValue(SheetName, cell, v); err != nil {
			sw.err = fmt.Errorf("set cell %s: %w", cell, err)
			return
		}
		if style != 0 {
			if err := sw.f.SetCellStyle(SheetName, cell, cell, style); err != nil {
				sw.err = fmt.Errorf("style cell %s: %w", cell, err)
				return
			}
		}
	}
	sw.row++
}

func (sw *sheetWriter) pair(label, value string) {
	sw.put(0, label, value)
}

// styleIf restyles column col of the last written row.
func (sw *sheetWriter) styleIf(cond bool, col, style int) {
	if !cond || sw.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, sw.row-1)
	if err != nil {
		sw.err = fmt.Errorf("cell name: %w", err)
		return
	}
	if err := sw.f.SetCellStyle(SheetName, cell, cell, style); err != nil {
		sw.err = fmt.Errorf("style cell %s: %w", cell, err)
	}
}
