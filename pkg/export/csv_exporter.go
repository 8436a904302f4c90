package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column describes one table column. Weight controls relative width in
// paginated output and is ignored by CSV.
type Column struct {
	Name   string
	Weight float64
}

// Table is ordered tabular content handed to the renderers. Every row
// must have exactly one cell per column.
type Table struct {
	Title   string
	Columns []Column
	Rows    [][]string
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export table has no columns")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("export row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}

// WriteCSV renders the table as CSV. The title is not emitted; CSV
// consumers get the header row only.
func WriteCSV(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
