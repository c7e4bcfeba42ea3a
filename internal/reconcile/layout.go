package reconcile

import (
	"strings"

	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
)

// KeySeparator joins the parts of a composite key.
const KeySeparator = "|"

// Row is one projected sheet row.
type Row []any

// Layout describes the columns of a target sheet.
type Layout struct {
	Sheet   string
	Headers []string
	// FirstColumn is the zero-based column of the first header.
	FirstColumn int
	// FirstDataRow is the one-based row below the header.
	FirstDataRow int
	// KeyColumns are positions within a row that form the composite key.
	KeyColumns []int
	// Preserved are positions kept from the sheet on update, for manual annotations.
	Preserved []int
}

// Width is the number of columns every row must have.
func (l Layout) Width() int {
	return len(l.Headers)
}

// HeaderRange is the A1 range of the header row.
func (l Layout) HeaderRange() string {
	return sheetsapi.RowSpan(l.Sheet, l.headerRow(), 1, l.FirstColumn, l.Width())
}

// DataRange is the open-ended A1 range of every data row.
func (l Layout) DataRange() string {
	return sheetsapi.Range{
		Sheet:       l.Sheet,
		StartRow:    l.FirstDataRow - 1,
		StartColumn: l.FirstColumn,
		EndColumn:   l.FirstColumn + l.Width(),
	}.String()
}

// RowRange is the A1 range of count rows starting at the one-based row.
func (l Layout) RowRange(row, count int) string {
	return sheetsapi.RowSpan(l.Sheet, row, count, l.FirstColumn, l.Width())
}

// CellKey builds the composite key of a row read from the sheet. Rows missing any key part
// produce "".
func (l Layout) CellKey(cells []string) string {
	parts := make([]string, 0, len(l.KeyColumns))
	for _, column := range l.KeyColumns {
		if column >= len(cells) {
			return ""
		}
		part := strings.TrimSpace(cells[column])
		if part == "" {
			return ""
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, KeySeparator)
}

// RowKey builds the composite key of a projected row.
func (l Layout) RowKey(row Row) string {
	cells := make([]string, len(row))
	for i, value := range row {
		cells[i] = sheetsapi.CellString(value)
	}
	return l.CellKey(cells)
}

func (l Layout) headerRow() int {
	if l.FirstDataRow <= 1 {
		return 1
	}
	return l.FirstDataRow - 1
}
