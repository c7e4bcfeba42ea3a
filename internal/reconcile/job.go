package reconcile

import (
	"context"
	"fmt"

	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Result summarizes one reconciliation run.
type Result struct {
	Fetched       int
	Existing      int
	Updated       int
	Inserted      int
	Duplicates    []string
	HeaderWritten bool
}

// Job reconciles projected rows into one sheet.
type Job struct {
	Layout Layout
	API    sheetsapi.API
	Writer *Writer
	Logger *zap.Logger
}

// NewJob wires a job and its writer for layout.
func NewJob(api sheetsapi.API, layout Layout, cfg WriterConfig) *Job {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		Layout: layout,
		API:    api,
		Writer: NewWriter(api, layout, cfg),
		Logger: logger.With(zap.String("sheet", layout.Sheet)),
	}
}

// Run reads the sheet, builds the plan and applies updates before inserts, so row numbers in
// the plan stay valid when new rows are inserted above them.
func (j *Job) Run(ctx context.Context, rows []Row) (result Result, err error) {
	ctx, end := telemetry.StartSpan(ctx, "gitlab-sheets/internal/reconcile", "reconcile.run",
		attribute.String("sheet", j.Layout.Sheet),
		attribute.Int("rows", len(rows)),
	)
	defer func() { end(err) }()

	result.Fetched = len(rows)
	if err := j.Writer.checkWidth(rows); err != nil {
		return result, err
	}

	ranges, err := j.API.BatchGetValues(ctx, []string{j.Layout.HeaderRange(), j.Layout.DataRange()}, sheetsapi.RenderFormula)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", j.Layout.Sheet, err)
	}
	var header, existing [][]string
	if len(ranges) > 0 {
		header = ranges[0]
	}
	if len(ranges) > 1 {
		existing = ranges[1]
	}

	if len(header) == 0 && j.Layout.Width() > 0 {
		headerRow := make([]any, 0, j.Layout.Width())
		for _, name := range j.Layout.Headers {
			headerRow = append(headerRow, name)
		}
		if err := j.API.UpdateValues(ctx, j.Layout.HeaderRange(), [][]any{headerRow}, sheetsapi.InputRaw); err != nil {
			return result, fmt.Errorf("write header of %s: %w", j.Layout.Sheet, err)
		}
		result.HeaderWritten = true
	}

	index := BuildIndex(existing, j.Layout.CellKey)
	result.Existing = index.Len()
	result.Duplicates = index.Duplicates()
	if len(result.Duplicates) > 0 {
		j.Logger.Warn("duplicate keys in sheet, last row wins",
			zap.Int("count", len(result.Duplicates)),
			zap.Strings("keys", result.Duplicates),
		)
	}

	plan := Reconcile(rows, j.Layout, index)
	j.Logger.Info("reconciliation plan",
		zap.Int("fetched", len(rows)),
		zap.Int("existing", index.Len()),
		zap.Int("updates", len(plan.Updates)),
		zap.Int("inserts", len(plan.Inserts)),
	)

	if err := j.Writer.ApplyUpdates(ctx, plan.Updates); err != nil {
		return result, err
	}
	result.Updated = len(plan.Updates)

	if err := j.Writer.ApplyInserts(ctx, plan.Inserts); err != nil {
		return result, err
	}
	result.Inserted = len(plan.Inserts)
	return result, nil
}
