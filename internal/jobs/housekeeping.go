package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
)

// ErrSheetNotFound is returned when a housekeeping target sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// NumberSteps writes 1..n into the step column for every row with content, and blanks the step
// of rows without content. It returns the highest step number written.
func NumberSteps(ctx context.Context, api sheetsapi.API, cfg config.NumberStepsConfig) (int, error) {
	content, err := columnRange(cfg.Sheet, cfg.ContentColumn, cfg.FirstRow)
	if err != nil {
		return 0, err
	}
	steps, err := columnRange(cfg.Sheet, cfg.StepColumn, cfg.FirstRow)
	if err != nil {
		return 0, err
	}

	ranges, err := api.BatchGetValues(ctx, []string{content.String(), steps.String()}, sheetsapi.RenderFormatted)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", cfg.Sheet, err)
	}
	var contentRows, stepRows [][]string
	if len(ranges) > 0 {
		contentRows = ranges[0]
	}
	if len(ranges) > 1 {
		stepRows = ranges[1]
	}

	// Stale numbers below the last content row are blanked too.
	n := max(len(contentRows), len(stepRows))
	if n == 0 {
		return 0, nil
	}

	step := 0
	values := make([][]any, n)
	for i := range values {
		if i < len(contentRows) && firstCell(contentRows[i]) != "" {
			step++
			values[i] = []any{step}
			continue
		}
		values[i] = []any{""}
	}

	steps.EndRow = steps.StartRow + n
	if err := api.UpdateValues(ctx, steps.String(), values, sheetsapi.InputRaw); err != nil {
		return 0, fmt.Errorf("write steps: %w", err)
	}
	return step, nil
}

// TableOfContents rewrites the contents sheet with one hyperlink per other sheet, in tab order.
func TableOfContents(ctx context.Context, api sheetsapi.API, cfg config.TableOfContentsConfig) (int, error) {
	sheets, err := api.Sheets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sheets: %w", err)
	}
	if _, ok := sheetsapi.FindSheet(sheets, cfg.Sheet); !ok {
		return 0, fmt.Errorf("%w: %s", ErrSheetNotFound, cfg.Sheet)
	}
	sort.SliceStable(sheets, func(i, j int) bool { return sheets[i].Index < sheets[j].Index })

	var rows [][]any
	for _, sheet := range sheets {
		if sheet.Title == cfg.Sheet {
			continue
		}
		link := reconcile.Hyperlink(sheet.Title, "#gid="+strconv.FormatInt(sheet.ID, 10))
		rows = append(rows, []any{link})
	}

	if err := api.ClearValues(ctx, sheetsapi.QuoteSheet(cfg.Sheet)); err != nil {
		return 0, fmt.Errorf("clear %s: %w", cfg.Sheet, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	target := sheetsapi.Range{Sheet: cfg.Sheet, EndRow: len(rows), EndColumn: 1}
	if err := api.UpdateValues(ctx, target.String(), rows, sheetsapi.InputUserEntered); err != nil {
		return 0, fmt.Errorf("write %s: %w", cfg.Sheet, err)
	}
	return len(rows), nil
}

// Dropdowns turns the distinct non-empty values of the source range into a list validation on
// the target range. It returns the options set.
func Dropdowns(ctx context.Context, api sheetsapi.API, cfg config.DropdownsConfig) ([]string, error) {
	target, err := sheetsapi.ParseRange(cfg.TargetRange)
	if err != nil {
		return nil, fmt.Errorf("dropdown target: %w", err)
	}
	if target.Sheet == "" {
		return nil, fmt.Errorf("dropdown target %q must name a sheet", cfg.TargetRange)
	}

	source, err := api.GetValues(ctx, cfg.SourceRange, sheetsapi.RenderFormatted)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.SourceRange, err)
	}
	options := distinctValues(source)
	if len(options) == 0 {
		return nil, fmt.Errorf("no dropdown values in %s", cfg.SourceRange)
	}

	sheets, err := api.Sheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	sheet, ok := sheetsapi.FindSheet(sheets, target.Sheet)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, target.Sheet)
	}
	if err := api.SetDropdown(ctx, target.Grid(sheet.ID), options); err != nil {
		return nil, fmt.Errorf("set dropdown on %s: %w", cfg.TargetRange, err)
	}
	return options, nil
}

// MergeRuns unmerges the column below the first row, then merges every vertical run of two or
// more identical non-empty cells. Cells hidden by a previous merge count as part of its run.
func MergeRuns(ctx context.Context, api sheetsapi.API, cfg config.MergeRunsConfig) (int, error) {
	column, err := columnRange(cfg.Sheet, cfg.Column, cfg.FirstRow)
	if err != nil {
		return 0, err
	}

	sheets, err := api.Sheets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sheets: %w", err)
	}
	sheet, ok := sheetsapi.FindSheet(sheets, cfg.Sheet)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSheetNotFound, cfg.Sheet)
	}

	rows, err := api.GetValues(ctx, column.String(), sheetsapi.RenderFormatted)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", column.String(), err)
	}
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = firstCell(row)
	}
	span := column.Grid(sheet.ID)
	values = fillMerged(values, span, sheet.Merges)

	if err := api.UnmergeCells(ctx, span); err != nil {
		return 0, fmt.Errorf("unmerge %s: %w", column.String(), err)
	}
	runs := Runs(values, column.StartRow, column.StartColumn, sheet.ID)
	if len(runs) == 0 {
		return 0, nil
	}
	if err := api.MergeCells(ctx, runs); err != nil {
		return 0, fmt.Errorf("merge %s: %w", column.String(), err)
	}
	return len(runs), nil
}

// Runs returns the grid ranges of runs of two or more identical non-empty values, where
// values[0] sits at the zero-based startRow.
func Runs(values []string, startRow, columnIndex int, sheetID int64) []sheetsapi.GridRange {
	var runs []sheetsapi.GridRange
	for start := 0; start < len(values); {
		end := start + 1
		for end < len(values) && values[end] == values[start] {
			end++
		}
		if values[start] != "" && end-start >= 2 {
			runs = append(runs, sheetsapi.GridRange{
				SheetID:     sheetID,
				StartRow:    startRow + start,
				EndRow:      startRow + end,
				StartColumn: columnIndex,
				EndColumn:   columnIndex + 1,
			})
		}
		start = end
	}
	return runs
}

// fillMerged copies the top value of each merge into the cells it hides. Reads stop at the last
// non-empty cell, so values grows to cover merges that reach past it.
func fillMerged(values []string, span sheetsapi.GridRange, merges []sheetsapi.GridRange) []string {
	for _, merge := range merges {
		if !merge.Intersects(span) {
			continue
		}
		if n := merge.EndRow - span.StartRow; n > len(values) {
			values = append(values, make([]string, n-len(values))...)
		}
	}
	for _, merge := range merges {
		if !merge.Intersects(span) {
			continue
		}
		top := merge.StartRow - span.StartRow
		if top < 0 || top >= len(values) {
			continue
		}
		for i := top + 1; i < merge.EndRow-span.StartRow; i++ {
			if values[i] == "" {
				values[i] = values[top]
			}
		}
	}
	return values
}

func columnRange(sheet, letter string, firstRow int) (sheetsapi.Range, error) {
	index, err := sheetsapi.ColumnIndex(letter)
	if err != nil {
		return sheetsapi.Range{}, fmt.Errorf("column %q: %w", letter, err)
	}
	if firstRow < 1 {
		firstRow = 1
	}
	return sheetsapi.Range{
		Sheet:       sheet,
		StartRow:    firstRow - 1,
		StartColumn: index,
		EndColumn:   index + 1,
	}, nil
}

func firstCell(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return strings.TrimSpace(row[0])
}

func distinctValues(rows [][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		for _, cell := range row {
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	return out
}
