package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
	"go.uber.org/zap"
)

// OpenFunc opens another spreadsheet by id.
type OpenFunc func(spreadsheetID string) sheetsapi.API

// TeamCDSResult summarizes a roll-up.
type TeamCDSResult struct {
	Milestones []string
	Read       int
	Kept       int
}

// TeamCDS copies the rows of every source whose milestone is selected in the settings range
// into the target data range, replacing what was there.
func TeamCDS(ctx context.Context, target sheetsapi.API, open OpenFunc, cfg config.TeamCDSConfig, logger *zap.Logger) (TeamCDSResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := TeamCDSResult{}

	data, err := sheetsapi.ParseRange(cfg.DataRange)
	if err != nil {
		return result, fmt.Errorf("team cds data range: %w", err)
	}
	if data.Sheet == "" {
		data.Sheet = cfg.Sheet
	}

	selected, err := target.GetValues(ctx, cfg.MilestonesRange, sheetsapi.RenderFormatted)
	if err != nil {
		return result, fmt.Errorf("read milestones: %w", err)
	}
	milestones := make(map[string]struct{})
	for _, row := range selected {
		for _, cell := range row {
			name := strings.TrimSpace(cell)
			if name == "" {
				continue
			}
			if _, seen := milestones[name]; !seen {
				result.Milestones = append(result.Milestones, name)
			}
			milestones[name] = struct{}{}
		}
	}
	if len(milestones) == 0 {
		logger.Warn("no milestones selected, team cds will be empty", zap.String("range", cfg.MilestonesRange))
	}

	var kept []reconcile.Row
	for _, source := range cfg.Sources {
		rows, err := readSource(ctx, open(source.SpreadsheetID), source)
		if err != nil {
			return result, err
		}
		result.Read += len(rows.values)
		for i, row := range rows.values {
			if _, ok := milestones[rows.milestoneAt(i)]; !ok {
				continue
			}
			kept = append(kept, toRow(row))
		}
	}
	result.Kept = len(kept)

	if err := target.ClearValues(ctx, data.String()); err != nil {
		return result, fmt.Errorf("clear %s: %w", data.String(), err)
	}
	if len(kept) == 0 {
		return result, nil
	}

	width := data.Width()
	if width == 0 {
		for _, row := range kept {
			width = max(width, len(row))
		}
	}
	values := make([][]any, 0, len(kept))
	for _, row := range kept {
		values = append(values, fitRow(row, width))
	}

	write := data
	write.EndRow = data.StartRow + len(values)
	write.EndColumn = data.StartColumn + width
	if err := target.UpdateValues(ctx, write.String(), values, reconcile.InputOption(kept)); err != nil {
		return result, fmt.Errorf("write %s: %w", write.String(), err)
	}
	logger.Info("team cds rolled up",
		zap.Strings("milestones", result.Milestones),
		zap.Int("read", result.Read),
		zap.Int("kept", result.Kept),
	)
	return result, nil
}

// sourceRows holds formula-rendered rows and the formatted milestone of each, so a computed
// milestone cell is matched on what it displays.
type sourceRows struct {
	values     [][]string
	milestones [][]string
}

func (r sourceRows) milestoneAt(i int) string {
	if i >= len(r.milestones) || len(r.milestones[i]) == 0 {
		return ""
	}
	return strings.TrimSpace(r.milestones[i][0])
}

func readSource(ctx context.Context, api sheetsapi.API, source config.TeamCDSSource) (sourceRows, error) {
	rng, err := sheetsapi.ParseRange(source.Range)
	if err != nil {
		return sourceRows{}, fmt.Errorf("source %s range: %w", source.SpreadsheetID, err)
	}
	column, err := sheetsapi.ColumnIndex(source.MilestoneColumn)
	if err != nil {
		return sourceRows{}, fmt.Errorf("source %s milestone column: %w", source.SpreadsheetID, err)
	}
	if column < rng.StartColumn || (rng.EndColumn > 0 && column >= rng.EndColumn) {
		return sourceRows{}, fmt.Errorf("source %s: milestone column %s outside %s", source.SpreadsheetID, source.MilestoneColumn, source.Range)
	}

	values, err := api.GetValues(ctx, source.Range, sheetsapi.RenderFormula)
	if err != nil {
		return sourceRows{}, fmt.Errorf("read source %s: %w", source.SpreadsheetID, err)
	}
	labels := rng
	labels.StartColumn = column
	labels.EndColumn = column + 1
	milestones, err := api.GetValues(ctx, labels.String(), sheetsapi.RenderFormatted)
	if err != nil {
		return sourceRows{}, fmt.Errorf("read source %s milestones: %w", source.SpreadsheetID, err)
	}
	return sourceRows{values: values, milestones: milestones}, nil
}

func toRow(cells []string) reconcile.Row {
	row := make(reconcile.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}

func fitRow(row reconcile.Row, width int) []any {
	out := make([]any, width)
	for i := range out {
		if i < len(row) {
			out[i] = row[i]
		} else {
			out[i] = ""
		}
	}
	return out
}
