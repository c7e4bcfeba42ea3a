// Package sheetstest provides an in-memory spreadsheet for tests.
package sheetstest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
)

// Validation is a recorded dropdown rule.
type Validation struct {
	Range  sheetsapi.GridRange
	Values []string
}

// Call is a recorded API call.
type Call struct {
	Method string
	Range  string
	Rows   int
	Input  sheetsapi.ValueInputOption
}

type memorySheet struct {
	info        sheetsapi.SheetInfo
	rows        [][]any
	validations []Validation
}

// Memory implements sheetsapi.API over an in-memory grid.
type Memory struct {
	mu       sync.Mutex
	sheets   []*memorySheet
	nextID   int64
	calls    []Call
	failures map[string]error
	numbers  bool
}

var _ sheetsapi.API = (*Memory)(nil)

// NewMemory creates an empty spreadsheet.
func NewMemory() *Memory {
	return &Memory{nextID: 100, failures: make(map[string]error)}
}

// AddSheet adds a sheet seeded with rows starting at A1 and returns its id.
func (m *Memory) AddSheet(title string, rows [][]any) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	seeded := make([][]any, 0, len(rows))
	for _, row := range rows {
		seeded = append(seeded, append([]any(nil), row...))
	}
	m.sheets = append(m.sheets, &memorySheet{
		info: sheetsapi.SheetInfo{ID: id, Title: title, Index: len(m.sheets)},
		rows: seeded,
	})
	return id
}

// ParseNumbers makes USER_ENTERED writes store numeric-looking text as float64, as Sheets does.
func (m *Memory) ParseNumbers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numbers = true
}

// Rows returns a copy of the sheet grid.
func (m *Memory) Rows(title string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	sheet := m.byTitle(title)
	if sheet == nil {
		return nil
	}
	out := make([][]any, 0, len(sheet.rows))
	for _, row := range sheet.rows {
		out = append(out, append([]any(nil), row...))
	}
	return out
}

// Merges returns the merged ranges of a sheet.
func (m *Memory) Merges(title string) []sheetsapi.GridRange {
	m.mu.Lock()
	defer m.mu.Unlock()

	sheet := m.byTitle(title)
	if sheet == nil {
		return nil
	}
	return append([]sheetsapi.GridRange(nil), sheet.info.Merges...)
}

// Validations returns the dropdown rules set on a sheet.
func (m *Memory) Validations(title string) []Validation {
	m.mu.Lock()
	defer m.mu.Unlock()

	sheet := m.byTitle(title)
	if sheet == nil {
		return nil
	}
	return append([]Validation(nil), sheet.validations...)
}

// Calls returns every recorded call in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount counts recorded calls of one method.
func (m *Memory) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// FailNext makes the next call of method return err.
func (m *Memory) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// GetValues implements sheetsapi.API.
func (m *Memory) GetValues(_ context.Context, a1 string, _ sheetsapi.RenderOption) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "GetValues", Range: a1}); err != nil {
		return nil, err
	}
	return m.read(a1)
}

// BatchGetValues implements sheetsapi.API.
func (m *Memory) BatchGetValues(_ context.Context, ranges []string, _ sheetsapi.RenderOption) ([][][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "BatchGetValues", Rows: len(ranges)}); err != nil {
		return nil, err
	}
	out := make([][][]string, 0, len(ranges))
	for _, a1 := range ranges {
		values, err := m.read(a1)
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, nil
}

// UpdateValues implements sheetsapi.API.
func (m *Memory) UpdateValues(_ context.Context, a1 string, rows [][]any, input sheetsapi.ValueInputOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "UpdateValues", Range: a1, Rows: len(rows), Input: input}); err != nil {
		return err
	}
	return m.write(a1, rows, input)
}

// BatchUpdateValues implements sheetsapi.API.
func (m *Memory) BatchUpdateValues(_ context.Context, data []sheetsapi.RangeValues, input sheetsapi.ValueInputOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "BatchUpdateValues", Rows: len(data), Input: input}); err != nil {
		return err
	}
	for _, item := range data {
		if err := m.write(item.Range, item.Values, input); err != nil {
			return err
		}
	}
	return nil
}

// AppendValues implements sheetsapi.API with INSERT_ROWS semantics.
func (m *Memory) AppendValues(_ context.Context, a1 string, rows [][]any, input sheetsapi.ValueInputOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "AppendValues", Range: a1, Rows: len(rows), Input: input}); err != nil {
		return err
	}
	sheet, rng, err := m.resolve(a1)
	if err != nil {
		return err
	}

	insertAt := rng.StartRow
	for i := rng.StartRow; i < len(sheet.rows); i++ {
		if rowHasValues(sheet.rows[i], rng) {
			insertAt = i + 1
		}
	}
	sheet.insertRows(insertAt, len(rows))
	sheet.set(insertAt, rng.StartColumn, m.enter(rows, input))
	return nil
}

// ClearValues implements sheetsapi.API.
func (m *Memory) ClearValues(_ context.Context, a1 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "ClearValues", Range: a1}); err != nil {
		return err
	}
	sheet, rng, err := m.resolve(a1)
	if err != nil {
		return err
	}
	for r := rng.StartRow; r < len(sheet.rows) && (rng.EndRow == 0 || r < rng.EndRow); r++ {
		for c := rng.StartColumn; c < len(sheet.rows[r]) && (rng.EndColumn == 0 || c < rng.EndColumn); c++ {
			sheet.rows[r][c] = ""
		}
	}
	return nil
}

// Sheets implements sheetsapi.API.
func (m *Memory) Sheets(_ context.Context) ([]sheetsapi.SheetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "Sheets"}); err != nil {
		return nil, err
	}
	out := make([]sheetsapi.SheetInfo, 0, len(m.sheets))
	for _, sheet := range m.sheets {
		info := sheet.info
		info.Merges = append([]sheetsapi.GridRange(nil), sheet.info.Merges...)
		out = append(out, info)
	}
	return out, nil
}

// InsertRows implements sheetsapi.API.
func (m *Memory) InsertRows(_ context.Context, sheetID int64, startIndex, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "InsertRows", Rows: count}); err != nil {
		return err
	}
	sheet := m.byID(sheetID)
	if sheet == nil {
		return fmt.Errorf("sheet %d not found", sheetID)
	}
	sheet.insertRows(startIndex, count)
	return nil
}

// MergeCells implements sheetsapi.API.
func (m *Memory) MergeCells(_ context.Context, ranges []sheetsapi.GridRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "MergeCells", Rows: len(ranges)}); err != nil {
		return err
	}
	for _, rng := range ranges {
		sheet := m.byID(rng.SheetID)
		if sheet == nil {
			return fmt.Errorf("sheet %d not found", rng.SheetID)
		}
		sheet.info.Merges = append(sheet.info.Merges, rng)
		sheet.clearHidden(rng)
	}
	return nil
}

// clearHidden blanks every cell of a merged range except its top-left one, as MERGE_ALL does.
func (s *memorySheet) clearHidden(rng sheetsapi.GridRange) {
	for r := rng.StartRow; r < rng.EndRow && r < len(s.rows); r++ {
		row := s.rows[r]
		for c := rng.StartColumn; c < rng.EndColumn && c < len(row); c++ {
			if r == rng.StartRow && c == rng.StartColumn {
				continue
			}
			row[c] = ""
		}
	}
}

// UnmergeCells implements sheetsapi.API.
func (m *Memory) UnmergeCells(_ context.Context, rng sheetsapi.GridRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "UnmergeCells"}); err != nil {
		return err
	}
	sheet := m.byID(rng.SheetID)
	if sheet == nil {
		return fmt.Errorf("sheet %d not found", rng.SheetID)
	}
	kept := sheet.info.Merges[:0]
	for _, merge := range sheet.info.Merges {
		if !merge.Intersects(rng) {
			kept = append(kept, merge)
		}
	}
	sheet.info.Merges = kept
	return nil
}

// SetDropdown implements sheetsapi.API.
func (m *Memory) SetDropdown(_ context.Context, rng sheetsapi.GridRange, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(Call{Method: "SetDropdown", Rows: len(values)}); err != nil {
		return err
	}
	sheet := m.byID(rng.SheetID)
	if sheet == nil {
		return fmt.Errorf("sheet %d not found", rng.SheetID)
	}
	sheet.validations = append(sheet.validations, Validation{Range: rng, Values: append([]string(nil), values...)})
	return nil
}

func (m *Memory) record(call Call) error {
	m.calls = append(m.calls, call)
	if err, ok := m.failures[call.Method]; ok {
		delete(m.failures, call.Method)
		return err
	}
	return nil
}

func (m *Memory) byTitle(title string) *memorySheet {
	for _, sheet := range m.sheets {
		if sheet.info.Title == title {
			return sheet
		}
	}
	return nil
}

func (m *Memory) byID(id int64) *memorySheet {
	for _, sheet := range m.sheets {
		if sheet.info.ID == id {
			return sheet
		}
	}
	return nil
}

func (m *Memory) resolve(a1 string) (*memorySheet, sheetsapi.Range, error) {
	rng, err := sheetsapi.ParseRange(a1)
	if err != nil {
		return nil, sheetsapi.Range{}, err
	}
	if rng.Sheet == "" {
		if len(m.sheets) == 0 {
			return nil, sheetsapi.Range{}, fmt.Errorf("spreadsheet has no sheets")
		}
		return m.sheets[0], rng, nil
	}
	sheet := m.byTitle(rng.Sheet)
	if sheet == nil {
		return nil, sheetsapi.Range{}, fmt.Errorf("unable to parse range: %s", a1)
	}
	return sheet, rng, nil
}

func (m *Memory) read(a1 string) ([][]string, error) {
	sheet, rng, err := m.resolve(a1)
	if err != nil {
		return nil, err
	}

	var out [][]string
	lastNonEmpty := -1
	for r := rng.StartRow; r < len(sheet.rows) && (rng.EndRow == 0 || r < rng.EndRow); r++ {
		var cells []string
		lastCell := -1
		for c := rng.StartColumn; c < len(sheet.rows[r]) && (rng.EndColumn == 0 || c < rng.EndColumn); c++ {
			value := sheetsapi.CellString(sheet.rows[r][c])
			cells = append(cells, value)
			if value != "" {
				lastCell = len(cells) - 1
			}
		}
		cells = cells[:lastCell+1]
		out = append(out, cells)
		if len(cells) > 0 {
			lastNonEmpty = len(out) - 1
		}
	}
	return out[:lastNonEmpty+1], nil
}

func (m *Memory) write(a1 string, rows [][]any, input sheetsapi.ValueInputOption) error {
	sheet, rng, err := m.resolve(a1)
	if err != nil {
		return err
	}
	if rng.EndRow > 0 && len(rows) > rng.EndRow-rng.StartRow {
		return fmt.Errorf("range %s holds %d rows, got %d", a1, rng.EndRow-rng.StartRow, len(rows))
	}
	for _, row := range rows {
		if width := rng.Width(); width > 0 && len(row) > width {
			return fmt.Errorf("range %s holds %d columns, got %d", a1, width, len(row))
		}
	}
	sheet.set(rng.StartRow, rng.StartColumn, m.enter(rows, input))
	return nil
}

// enter converts rows the way the sheet stores them. USER_ENTERED drops a leading apostrophe
// and, with ParseNumbers, turns numeric text into numbers. RAW keeps values verbatim.
func (m *Memory) enter(rows [][]any, input sheetsapi.ValueInputOption) [][]any {
	if input != sheetsapi.InputUserEntered {
		return rows
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, value := range row {
			cells[i] = value
			text, ok := value.(string)
			if !ok {
				continue
			}
			if quoted, found := strings.CutPrefix(text, "'"); found {
				cells[i] = quoted
				continue
			}
			if !m.numbers || strings.HasPrefix(text, "=") {
				continue
			}
			if number, ok := parseNumber(text); ok {
				cells[i] = number
			}
		}
		out = append(out, cells)
	}
	return out
}

func (s *memorySheet) insertRows(at, count int) {
	for len(s.rows) < at {
		s.rows = append(s.rows, nil)
	}
	blank := make([][]any, count)
	s.rows = append(s.rows[:at], append(blank, s.rows[at:]...)...)
}

func (s *memorySheet) set(startRow, startColumn int, rows [][]any) {
	for i, row := range rows {
		r := startRow + i
		for len(s.rows) <= r {
			s.rows = append(s.rows, nil)
		}
		for j, value := range row {
			c := startColumn + j
			for len(s.rows[r]) <= c {
				s.rows[r] = append(s.rows[r], "")
			}
			s.rows[r][c] = value
		}
	}
}

func parseNumber(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.IndexFunc(text, func(r rune) bool {
		return !strings.ContainsRune("0123456789.-+eE", r)
	}) >= 0 {
		return 0, false
	}
	number, err := strconv.ParseFloat(text, 64)
	return number, err == nil
}

func rowHasValues(row []any, rng sheetsapi.Range) bool {
	for c := rng.StartColumn; c < len(row) && (rng.EndColumn == 0 || c < rng.EndColumn); c++ {
		if sheetsapi.CellString(row[c]) != "" {
			return true
		}
	}
	return false
}
