package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes a workbook with a summary sheet and an events sheet.
func WriteXLSX(w io.Writer, r Report, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	summary := "summary"
	events := "events"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	if _, err := f.NewSheet(events); err != nil {
		return err
	}

	_ = f.SetCellValue(summary, "A1", "Feed history")
	_ = f.SetCellValue(summary, "A3", "Device")
	_ = f.SetCellValue(summary, "B3", r.DeviceID)
	_ = f.SetCellValue(summary, "A4", "Food left (kg)")
	_ = f.SetCellValue(summary, "B4", r.LatestFoodLevel)
	_ = f.SetCellValue(summary, "A5", "Feeds")
	_ = f.SetCellValue(summary, "B5", len(r.Events))

	_ = f.SetCellValue(events, "A1", "Time")
	_ = f.SetCellValue(events, "B1", "Trigger")
	_ = f.SetCellValue(events, "C1", "ID")
	for i, e := range r.Events {
		row := i + 2
		_ = f.SetCellValue(events, fmt.Sprintf("A%d", row), formatTime(e.FeedingTime, loc))
		_ = f.SetCellValue(events, fmt.Sprintf("B%d", row), Label(e))
		_ = f.SetCellValue(events, fmt.Sprintf("C%d", row), e.ID)
	}

	return f.Write(w)
}

// WritePDF renders the report as a one-table A4 document.
func WritePDF(w io.Writer, r Report, loc *time.Location) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Feed history")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", r.DeviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Food left: %.2f kg", r.LatestFoodLevel))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Feeds: %d", len(r.Events)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Trigger", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, e := range r.Events {
		pdf.CellFormat(50, 6, formatTime(e.FeedingTime, loc), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, Label(e), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

func WriteCSV(w io.Writer, r Report, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "trigger", "id"}); err != nil {
		return err
	}
	for _, e := range r.Events {
		if err := cw.Write([]string{formatTime(e.FeedingTime, loc), Label(e), e.ID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export picks the writer from the file extension.
func Export(w io.Writer, filename string, r Report, loc *time.Location) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return WriteXLSX(w, r, loc)
	case ".pdf":
		return WritePDF(w, r, loc)
	case ".csv":
		return WriteCSV(w, r, loc)
	default:
		return fmt.Errorf("unsupported export format %q (use .xlsx, .pdf or .csv)", filepath.Ext(filename))
	}
}
