package reconcile

import (
	"context"
	"fmt"

	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
	"go.uber.org/zap"
)

const (
	// InsertAppend appends new rows below the table with INSERT_ROWS semantics.
	InsertAppend = "append"
	// InsertAtTop inserts blank rows at the first data row, then writes into them.
	InsertAtTop = "insert"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	InsertStrategy    string
	MaxRangesPerBatch int
	Logger            *zap.Logger
}

// Writer applies a Plan to one sheet.
type Writer struct {
	api       sheetsapi.API
	layout    Layout
	strategy  string
	maxRanges int
	logger    *zap.Logger
}

// WidthError reports a row that does not match the layout width.
type WidthError struct {
	Position int
	Got      int
	Want     int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("row %d has %d cells, layout expects %d", e.Position, e.Got, e.Want)
}

// NewWriter creates a writer for layout.
func NewWriter(api sheetsapi.API, layout Layout, cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy := cfg.InsertStrategy
	if strategy == "" {
		strategy = InsertAppend
	}
	maxRanges := cfg.MaxRangesPerBatch
	if maxRanges <= 0 {
		maxRanges = 500
	}
	return &Writer{
		api:       api,
		layout:    layout,
		strategy:  strategy,
		maxRanges: maxRanges,
		logger:    logger.With(zap.String("sheet", layout.Sheet)),
	}
}

// ApplyUpdates rewrites each updated row in place, one range per row, batched.
func (w *Writer) ApplyUpdates(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(updates))
	for _, update := range updates {
		rows = append(rows, update.Values)
	}
	if err := w.checkWidth(rows); err != nil {
		w.logger.Error("rejecting updates", zap.Error(err))
		return err
	}

	for start := 0; start < len(updates); start += w.maxRanges {
		end := min(start+w.maxRanges, len(updates))
		chunk := updates[start:end]

		chunkRows := make([]Row, 0, len(chunk))
		for _, update := range chunk {
			chunkRows = append(chunkRows, update.Values)
		}
		input := InputOption(chunkRows)

		data := make([]sheetsapi.RangeValues, 0, len(chunk))
		for i, update := range chunk {
			data = append(data, sheetsapi.RangeValues{
				Range:  w.layout.RowRange(update.Row, 1),
				Values: [][]any{w.literalKeys(chunkRows[i], input)},
			})
		}

		if err := w.api.BatchUpdateValues(ctx, data, input); err != nil {
			w.logger.Error("batch update failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(chunk)),
				zap.Error(err),
			)
			return fmt.Errorf("update rows of %s: %w", w.layout.Sheet, err)
		}
		w.logger.Debug("updated rows", zap.Int("count", len(chunk)))
	}
	return nil
}

// ApplyInserts writes new rows in order using the configured strategy.
func (w *Writer) ApplyInserts(ctx context.Context, inserts []Row) error {
	if len(inserts) == 0 {
		return nil
	}
	if err := w.checkWidth(inserts); err != nil {
		w.logger.Error("rejecting inserts", zap.Error(err))
		return err
	}

	input := InputOption(inserts)
	values := make([][]any, 0, len(inserts))
	for _, row := range inserts {
		values = append(values, w.literalKeys(row, input))
	}

	var err error
	switch w.strategy {
	case InsertAtTop:
		err = w.insertAtTop(ctx, values, input)
	default:
		err = w.api.AppendValues(ctx, w.layout.DataRange(), values, input)
	}
	if err != nil {
		w.logger.Error("insert failed",
			zap.String("strategy", w.strategy),
			zap.Int("rows", len(inserts)),
			zap.Error(err),
		)
		return fmt.Errorf("insert rows into %s: %w", w.layout.Sheet, err)
	}
	w.logger.Debug("inserted rows", zap.String("strategy", w.strategy), zap.Int("count", len(inserts)))
	return nil
}

func (w *Writer) insertAtTop(ctx context.Context, values [][]any, input sheetsapi.ValueInputOption) error {
	sheets, err := w.api.Sheets(ctx)
	if err != nil {
		return err
	}
	sheet, ok := sheetsapi.FindSheet(sheets, w.layout.Sheet)
	if !ok {
		return fmt.Errorf("sheet %q not found", w.layout.Sheet)
	}
	if err := w.api.InsertRows(ctx, sheet.ID, w.layout.FirstDataRow-1, len(values)); err != nil {
		return err
	}
	return w.api.UpdateValues(ctx, w.layout.RowRange(w.layout.FirstDataRow, len(values)), values, input)
}

func (w *Writer) checkWidth(rows []Row) error {
	width := w.layout.Width()
	for i, row := range rows {
		if len(row) != width {
			return &WidthError{Position: i, Got: len(row), Want: width}
		}
	}
	return nil
}

// literalKeys returns row with its text key cells quoted when input is USER_ENTERED, so the
// sheet stores "007" as text instead of the number 7. The caller's row is not modified.
func (w *Writer) literalKeys(row Row, input sheetsapi.ValueInputOption) Row {
	if input != sheetsapi.InputUserEntered {
		return row
	}
	out := append(Row(nil), row...)
	for _, column := range w.layout.KeyColumns {
		if column >= len(out) {
			continue
		}
		text, ok := out[column].(string)
		if !ok || text == "" || IsFormula(text) {
			continue
		}
		out[column] = "'" + text
	}
	return out
}

// InputOption picks USER_ENTERED when any cell is a formula, RAW otherwise.
func InputOption(rows []Row) sheetsapi.ValueInputOption {
	for _, row := range rows {
		for _, value := range row {
			if IsFormula(value) {
				return sheetsapi.InputUserEntered
			}
		}
	}
	return sheetsapi.InputRaw
}
