package jobs

import (
	"context"
	"fmt"

	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"go.uber.org/zap"
)

// FetchFunc lists the records of one project.
type FetchFunc func(ctx context.Context, project string) (gitlabapi.RecordsResult, error)

// ProjectOutcome records how fetching one project went.
type ProjectOutcome struct {
	Project config.Project
	Status  gitlabapi.EndpointStatus
	Records int
	Pages   int
	Err     error
}

// OK reports whether the project's records were kept.
func (o ProjectOutcome) OK() bool {
	return o.Err == nil && o.Status == gitlabapi.EndpointStatusOK
}

// FetchProjects fetches projects one after another in declared order and concatenates their
// records. A failing project is logged and skipped; only context cancellation aborts the run.
func FetchProjects(ctx context.Context, projects []config.Project, fetch FetchFunc, logger *zap.Logger) ([]gitlabapi.Record, []ProjectOutcome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var records []gitlabapi.Record
	outcomes := make([]ProjectOutcome, 0, len(projects))
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return records, outcomes, fmt.Errorf("fetch %s: %w", project.ID, err)
		}

		result, err := fetch(ctx, project.ID)
		outcome := ProjectOutcome{Project: project, Status: result.Status, Pages: result.Pages, Err: err}
		switch {
		case err != nil:
			logger.Error("project fetch failed, skipping",
				zap.String("project", project.Name),
				zap.String("project_id", project.ID),
				zap.Error(err),
			)
		case result.Status != gitlabapi.EndpointStatusOK:
			logger.Warn("project fetch returned non-ok status, skipping",
				zap.String("project", project.Name),
				zap.String("project_id", project.ID),
				zap.String("status", string(result.Status)),
			)
		default:
			for _, record := range result.Records {
				record.Project = project.Name
				records = append(records, record)
			}
			outcome.Records = len(result.Records)
			logger.Info("project fetched",
				zap.String("project", project.Name),
				zap.Int("records", len(result.Records)),
				zap.Int("pages", result.Pages),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return records, outcomes, nil
}
