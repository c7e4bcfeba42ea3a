package sheetsapi

import (
	"context"

	"go.uber.org/zap"
)

// DryRun reads through to the wrapped API and logs writes instead of sending them.
type DryRun struct {
	API
	logger *zap.Logger
}

// NewDryRun wraps api so that every mutating call becomes a log line.
func NewDryRun(api API, logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{API: api, logger: logger.With(zap.Bool("dry_run", true))}
}

// UpdateValues logs the skipped write.
func (d *DryRun) UpdateValues(_ context.Context, a1 string, rows [][]any, input ValueInputOption) error {
	d.logger.Info("skipping values.update", zap.String("range", a1), zap.Int("rows", len(rows)), zap.String("input", string(input)))
	return nil
}

// BatchUpdateValues logs the skipped write.
func (d *DryRun) BatchUpdateValues(_ context.Context, data []RangeValues, input ValueInputOption) error {
	d.logger.Info("skipping values.batchUpdate", zap.Int("ranges", len(data)), zap.String("input", string(input)))
	return nil
}

// AppendValues logs the skipped write.
func (d *DryRun) AppendValues(_ context.Context, a1 string, rows [][]any, input ValueInputOption) error {
	d.logger.Info("skipping values.append", zap.String("range", a1), zap.Int("rows", len(rows)), zap.String("input", string(input)))
	return nil
}

// ClearValues logs the skipped write.
func (d *DryRun) ClearValues(_ context.Context, a1 string) error {
	d.logger.Info("skipping values.clear", zap.String("range", a1))
	return nil
}

// InsertRows logs the skipped write.
func (d *DryRun) InsertRows(_ context.Context, sheetID int64, startIndex, count int) error {
	d.logger.Info("skipping insertDimension", zap.Int64("sheet_id", sheetID), zap.Int("start_index", startIndex), zap.Int("count", count))
	return nil
}

// MergeCells logs the skipped write.
func (d *DryRun) MergeCells(_ context.Context, ranges []GridRange) error {
	d.logger.Info("skipping mergeCells", zap.Int("ranges", len(ranges)))
	return nil
}

// UnmergeCells logs the skipped write.
func (d *DryRun) UnmergeCells(_ context.Context, rng GridRange) error {
	d.logger.Info("skipping unmergeCells", zap.Int64("sheet_id", rng.SheetID))
	return nil
}

// SetDropdown logs the skipped write.
func (d *DryRun) SetDropdown(_ context.Context, rng GridRange, values []string) error {
	d.logger.Info("skipping setDataValidation", zap.Int64("sheet_id", rng.SheetID), zap.Int("values", len(values)))
	return nil
}
