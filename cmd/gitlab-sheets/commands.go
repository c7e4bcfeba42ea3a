package main

import (
	"context"
	"strings"

	"github.com/cam3ron2/gitlab-sheets/internal/enrich"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"github.com/cam3ron2/gitlab-sheets/internal/jobs"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/cam3ron2/gitlab-sheets/internal/report"
)

func runIssues(ctx context.Context, rt *runtime) error {
	gitlab := rt.backends.GitLab
	state := rt.cfg.Jobs.IssuesState
	layout := jobs.IssueLayout(rt.cfg.Jobs.IssuesSheet)

	sync := &jobs.Sync{
		Name:     enrich.NameIssue,
		Projects: rt.cfg.GitLab.Projects,
		Fetch: func(ctx context.Context, project string) (gitlabapi.RecordsResult, error) {
			return gitlab.ListIssues(ctx, project, state)
		},
		Enrich:  enrich.IssueEnricher(gitlab, rt.location),
		Columns: enrich.IssueColumns,
		Runner:  rt.enrichRunner(),
		Project: jobs.ProjectIssue(rt.location),
		Job:     reconcile.NewJob(rt.backends.Sheets, layout, rt.writerConfig()),
		Logger:  rt.logger,
	}
	return rt.runSync(ctx, sync)
}

func runMergeRequests(ctx context.Context, rt *runtime) error {
	gitlab := rt.backends.GitLab
	state := rt.cfg.Jobs.MergeRequestsState
	layout := jobs.MergeRequestLayout(rt.cfg.Jobs.MergeRequestsSheet)

	sync := &jobs.Sync{
		Name:     enrich.NameMergeRequest,
		Projects: rt.cfg.GitLab.Projects,
		Fetch: func(ctx context.Context, project string) (gitlabapi.RecordsResult, error) {
			return gitlab.ListMergeRequests(ctx, project, state)
		},
		Enrich:  enrich.MergeRequestEnricher(gitlab),
		Columns: enrich.MergeRequestColumns,
		Runner:  rt.enrichRunner(),
		Project: jobs.ProjectMergeRequest(rt.location),
		Job:     reconcile.NewJob(rt.backends.Sheets, layout, rt.writerConfig()),
		Logger:  rt.logger,
	}
	return rt.runSync(ctx, sync)
}

func (rt *runtime) runSync(ctx context.Context, sync *jobs.Sync) error {
	result, err := sync.Run(ctx)
	for _, project := range result.Projects {
		rt.recorder.ObserveProject(rt.command, projectStatus(project), project.Records)
	}
	rt.recorder.ObserveRows(sync.Job.Layout.Sheet, result.Reconcile.Updated, result.Reconcile.Inserted, len(result.Reconcile.Duplicates))
	report.Sync(rt.out, result)
	return err
}

func projectStatus(outcome jobs.ProjectOutcome) string {
	if outcome.Err != nil {
		return "error"
	}
	return string(outcome.Status)
}

func runTeamCDS(ctx context.Context, rt *runtime) error {
	result, err := jobs.TeamCDS(ctx, rt.backends.Sheets, rt.backends.Open, rt.cfg.Jobs.TeamCDS, rt.logger)
	if err != nil {
		return err
	}
	report.Line(rt.out, true, "milestones: %s", strings.Join(result.Milestones, ", "))
	report.Line(rt.out, true, "%d of %d rows rolled up into %s", result.Kept, result.Read, rt.cfg.Jobs.TeamCDS.Sheet)
	return nil
}

func runNumberSteps(ctx context.Context, rt *runtime) error {
	steps, err := jobs.NumberSteps(ctx, rt.backends.Sheets, rt.cfg.Jobs.NumberSteps)
	if err != nil {
		return err
	}
	report.Line(rt.out, true, "%d steps numbered in %s", steps, rt.cfg.Jobs.NumberSteps.Sheet)
	return nil
}

func runTableOfContents(ctx context.Context, rt *runtime) error {
	entries, err := jobs.TableOfContents(ctx, rt.backends.Sheets, rt.cfg.Jobs.TableOfContents)
	if err != nil {
		return err
	}
	report.Line(rt.out, true, "%d sheets linked from %s", entries, rt.cfg.Jobs.TableOfContents.Sheet)
	return nil
}

func runDropdowns(ctx context.Context, rt *runtime) error {
	options, err := jobs.Dropdowns(ctx, rt.backends.Sheets, rt.cfg.Jobs.Dropdowns)
	if err != nil {
		return err
	}
	report.Line(rt.out, true, "%d options set on %s", len(options), rt.cfg.Jobs.Dropdowns.TargetRange)
	return nil
}

func runMergeRuns(ctx context.Context, rt *runtime) error {
	runs, err := jobs.MergeRuns(ctx, rt.backends.Sheets, rt.cfg.Jobs.MergeRuns)
	if err != nil {
		return err
	}
	report.Line(rt.out, true, "%d runs merged in %s", runs, rt.cfg.Jobs.MergeRuns.Sheet)
	return nil
}
