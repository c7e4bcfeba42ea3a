package jobs

import (
	"context"
	"fmt"

	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/enrich"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Sync is one GitLab-to-sheet job: fetch every project, enrich, project and reconcile.
// Enrich may be nil, in which case the enrichment columns stay empty.
type Sync struct {
	Name     string
	Projects []config.Project
	Fetch    FetchFunc
	Enrich   enrich.Func
	Columns  int
	Runner   *enrich.Runner
	Project  Projector
	Job      *reconcile.Job
	Logger   *zap.Logger
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Name             string
	Projects         []ProjectOutcome
	EnrichmentFailed int
	EnrichmentCached int
	Reconcile        reconcile.Result
}

// Run executes the sync. Per-project and per-record failures are absorbed; write failures abort.
func (s *Sync) Run(ctx context.Context) (result SyncResult, err error) {
	ctx, end := telemetry.StartSpan(ctx, "gitlab-sheets/internal/jobs", "jobs.sync",
		attribute.String("job", s.Name),
		attribute.Int("projects", len(s.Projects)),
	)
	defer func() { end(err) }()

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	result.Name = s.Name

	records, outcomes, err := FetchProjects(ctx, s.Projects, s.Fetch, logger)
	result.Projects = outcomes
	if err != nil {
		return result, err
	}

	enrichment := make([][]string, len(records))
	if s.Enrich != nil && s.Runner != nil && len(records) > 0 {
		for i, r := range s.Runner.Run(ctx, s.Name, records, s.Columns, s.Enrich) {
			enrichment[i] = r.Values
			if r.Err != nil {
				result.EnrichmentFailed++
			}
			if r.Cached {
				result.EnrichmentCached++
			}
		}
	}

	rows := make([]reconcile.Row, 0, len(records))
	for i, record := range records {
		rows = append(rows, s.Project(record, enrichment[i]))
	}

	reconciled, err := s.Job.Run(ctx, rows)
	result.Reconcile = reconciled
	if err != nil {
		logger.Error("sheet write failed", zap.String("job", s.Name), zap.Error(err))
		return result, fmt.Errorf("%s: %w", s.Name, err)
	}
	return result, nil
}
