package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfUsableWidth = 190.0

// WritePDF renders the table as a portrait A4 document. Column widths
// are distributed by weight; a zero weight counts as 1.
func WritePDF(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	widths := columnWidths(t.Columns)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if t.Title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, t.Title, "", 1, "L", false, 0, "")
		pdf.Ln(4)
	}

	drawHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(235, 235, 235)
		for i, col := range t.Columns {
			pdf.CellFormat(widths[i], 7, col.Name, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	drawHeader()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range t.Rows {
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			drawHeader()
		}
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, col := range cols {
		w := col.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		w := col.Weight
		if w <= 0 {
			w = 1
		}
		widths[i] = pdfUsableWidth * w / total
	}
	return widths
}
