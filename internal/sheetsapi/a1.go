package sheetsapi

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a parsed A1 range. Indexes are zero-based and half-open; a zero End means unbounded.
type Range struct {
	Sheet       string
	StartRow    int
	EndRow      int
	StartColumn int
	EndColumn   int
}

// ColumnLetter converts a zero-based column index to its A1 letters (0 -> A, 26 -> AA).
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var letters []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return string(letters)
}

// ColumnIndex converts A1 column letters to a zero-based index.
func ColumnIndex(letters string) (int, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(letters))
	if trimmed == "" {
		return 0, fmt.Errorf("empty column")
	}
	index := 0
	for _, r := range trimmed {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		index = index*26 + int(r-'A'+1)
	}
	return index - 1, nil
}

// QuoteSheet quotes a sheet title for use in A1 notation.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// ParseRange parses A1 notation such as "'Merge Requests'!A2:N", "Issues!B5" or "Settings".
func ParseRange(a1 string) (Range, error) {
	sheet, cells, err := splitSheet(strings.TrimSpace(a1))
	if err != nil {
		return Range{}, err
	}
	out := Range{Sheet: sheet}
	if cells == "" {
		return out, nil
	}

	startRaw, endRaw, hasEnd := strings.Cut(cells, ":")
	startCol, startRow, err := parseCell(startRaw)
	if err != nil {
		return Range{}, fmt.Errorf("parse range %q: %w", a1, err)
	}
	if startCol >= 0 {
		out.StartColumn = startCol
	}
	if startRow > 0 {
		out.StartRow = startRow - 1
	}

	if !hasEnd {
		if startCol >= 0 {
			out.EndColumn = startCol + 1
		}
		if startRow > 0 {
			out.EndRow = startRow
		}
		return out, nil
	}

	endCol, endRow, err := parseCell(endRaw)
	if err != nil {
		return Range{}, fmt.Errorf("parse range %q: %w", a1, err)
	}
	if endCol >= 0 {
		out.EndColumn = endCol + 1
	}
	if endRow > 0 {
		out.EndRow = endRow
	}
	return out, nil
}

// String renders the range in A1 notation with a quoted sheet title.
func (r Range) String() string {
	cells := ColumnLetter(r.StartColumn)
	if r.StartRow > 0 || r.EndRow > 0 {
		cells += strconv.Itoa(r.StartRow + 1)
	}
	end := ""
	if r.EndColumn > 0 {
		end = ColumnLetter(r.EndColumn - 1)
	}
	if r.EndRow > 0 && end != "" {
		end += strconv.Itoa(r.EndRow)
	}
	if end != "" {
		cells += ":" + end
	}
	if r.Sheet == "" {
		return cells
	}
	return QuoteSheet(r.Sheet) + "!" + cells
}

// Width is the number of columns spanned, or zero when unbounded.
func (r Range) Width() int {
	if r.EndColumn <= r.StartColumn {
		return 0
	}
	return r.EndColumn - r.StartColumn
}

// Grid converts the range to a grid range on the given sheet.
func (r Range) Grid(sheetID int64) GridRange {
	return GridRange{
		SheetID:     sheetID,
		StartRow:    r.StartRow,
		EndRow:      r.EndRow,
		StartColumn: r.StartColumn,
		EndColumn:   r.EndColumn,
	}
}

// RowSpan returns the A1 range covering count rows from the one-based row, across the given
// zero-based columns.
func RowSpan(sheet string, row, count, startColumn, width int) string {
	return Range{
		Sheet:       sheet,
		StartRow:    row - 1,
		EndRow:      row - 1 + count,
		StartColumn: startColumn,
		EndColumn:   startColumn + width,
	}.String()
}

func splitSheet(a1 string) (string, string, error) {
	if strings.HasPrefix(a1, "'") {
		var title strings.Builder
		for i := 1; i < len(a1); i++ {
			if a1[i] != '\'' {
				title.WriteByte(a1[i])
				continue
			}
			if i+1 < len(a1) && a1[i+1] == '\'' {
				title.WriteByte('\'')
				i++
				continue
			}
			rest := a1[i+1:]
			if rest == "" {
				return title.String(), "", nil
			}
			if !strings.HasPrefix(rest, "!") {
				return "", "", fmt.Errorf("parse range %q: expected ! after sheet title", a1)
			}
			return title.String(), rest[1:], nil
		}
		return "", "", fmt.Errorf("parse range %q: unterminated sheet title", a1)
	}

	if idx := strings.LastIndex(a1, "!"); idx >= 0 {
		return a1[:idx], a1[idx+1:], nil
	}
	start, _, isSpan := strings.Cut(a1, ":")
	if column, row, err := parseCell(start); err == nil && (isSpan || (column >= 0 && row > 0)) {
		return "", a1, nil
	}
	return a1, "", nil
}

// parseCell returns the zero-based column (-1 when absent) and one-based row (0 when absent).
func parseCell(cell string) (int, int, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(cell, "$", "")))
	if trimmed == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	split := 0
	for split < len(trimmed) && trimmed[split] >= 'A' && trimmed[split] <= 'Z' {
		split++
	}
	letters, digits := trimmed[:split], trimmed[split:]

	column := -1
	if letters != "" {
		parsed, err := ColumnIndex(letters)
		if err != nil {
			return 0, 0, err
		}
		column = parsed
	}
	row := 0
	if digits != "" {
		parsed, err := strconv.Atoi(digits)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid row in %q", cell)
		}
		row = parsed
	}
	if column < 0 && row == 0 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	return column, row, nil
}
