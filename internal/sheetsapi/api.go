package sheetsapi

import (
	"context"
	"fmt"
	"strconv"
)

// ValueInputOption controls how written values are interpreted.
type ValueInputOption string

const (
	// InputRaw stores values as-is.
	InputRaw ValueInputOption = "RAW"
	// InputUserEntered parses values as if typed into the UI, evaluating formulas.
	InputUserEntered ValueInputOption = "USER_ENTERED"
)

// RenderOption controls how read values are rendered.
type RenderOption string

const (
	// RenderFormatted returns values as displayed.
	RenderFormatted RenderOption = "FORMATTED_VALUE"
	// RenderUnformatted returns raw cell values.
	RenderUnformatted RenderOption = "UNFORMATTED_VALUE"
	// RenderFormula returns formulas instead of their results.
	RenderFormula RenderOption = "FORMULA"
)

// RangeValues is one range of a batched values write.
type RangeValues struct {
	Range  string
	Values [][]any
}

// GridRange is a zero-based, half-open cell range on a sheet. A zero End means unbounded.
type GridRange struct {
	SheetID     int64
	StartRow    int
	EndRow      int
	StartColumn int
	EndColumn   int
}

// Intersects reports whether two grid ranges on the same sheet overlap.
func (g GridRange) Intersects(other GridRange) bool {
	if g.SheetID != other.SheetID {
		return false
	}
	return spansOverlap(g.StartRow, g.EndRow, other.StartRow, other.EndRow) &&
		spansOverlap(g.StartColumn, g.EndColumn, other.StartColumn, other.EndColumn)
}

func spansOverlap(startA, endA, startB, endB int) bool {
	if endA > 0 && endA <= startB {
		return false
	}
	if endB > 0 && endB <= startA {
		return false
	}
	return true
}

// SheetInfo describes one sheet of a spreadsheet.
type SheetInfo struct {
	ID     int64
	Title  string
	Index  int
	Merges []GridRange
}

// FindSheet returns the sheet with the given title.
func FindSheet(sheets []SheetInfo, title string) (SheetInfo, bool) {
	for _, sheet := range sheets {
		if sheet.Title == title {
			return sheet, true
		}
	}
	return SheetInfo{}, false
}

// API is the subset of the Sheets API used by the jobs.
type API interface {
	GetValues(ctx context.Context, a1 string, render RenderOption) ([][]string, error)
	BatchGetValues(ctx context.Context, ranges []string, render RenderOption) ([][][]string, error)
	UpdateValues(ctx context.Context, a1 string, rows [][]any, input ValueInputOption) error
	BatchUpdateValues(ctx context.Context, data []RangeValues, input ValueInputOption) error
	AppendValues(ctx context.Context, a1 string, rows [][]any, input ValueInputOption) error
	ClearValues(ctx context.Context, a1 string) error
	Sheets(ctx context.Context) ([]SheetInfo, error)
	InsertRows(ctx context.Context, sheetID int64, startIndex, count int) error
	MergeCells(ctx context.Context, ranges []GridRange) error
	UnmergeCells(ctx context.Context, rng GridRange) error
	SetDropdown(ctx context.Context, rng GridRange, values []string) error
}

// CellString renders a cell value read from the API as a string.
func CellString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		if typed {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(typed)
	}
}

// StringRows converts raw API rows to strings.
func StringRows(rows [][]any) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = CellString(value)
		}
		out = append(out, cells)
	}
	return out
}
