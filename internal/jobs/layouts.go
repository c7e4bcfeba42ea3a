// Package jobs wires GitLab fetching, enrichment and reconciliation into the per-subcommand
// sheet jobs, and implements the spreadsheet housekeeping operations.
package jobs

import (
	"strings"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/enrich"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
)

var issueHeaders = []string{
	"ID", "IID", "Project", "Title", "State", "Author", "Assignees", "Labels", "Milestone",
	"Created", "Updated", "Closed", "Closed By", "Reopened", "Label History", "Notes",
}

var mergeRequestHeaders = []string{
	"ID", "IID", "Project", "Title", "State", "Author", "Assignees", "Reviewers", "Labels",
	"Milestone", "Created", "Updated", "Merged", "Merged By", "First LGTM", "Closed Issues", "Notes",
}

// IssueLayout is the issues sheet: keyed by id, iid and project, with a free-text Notes column
// that syncs never overwrite.
func IssueLayout(sheet string) reconcile.Layout {
	return reconcile.Layout{
		Sheet:        sheet,
		Headers:      issueHeaders,
		FirstDataRow: 2,
		KeyColumns:   []int{0, 1, 2},
		Preserved:    []int{len(issueHeaders) - 1},
	}
}

// MergeRequestLayout is the merge requests sheet.
func MergeRequestLayout(sheet string) reconcile.Layout {
	return reconcile.Layout{
		Sheet:        sheet,
		Headers:      mergeRequestHeaders,
		FirstDataRow: 2,
		KeyColumns:   []int{0, 1, 2},
		Preserved:    []int{len(mergeRequestHeaders) - 1},
	}
}

// Projector maps a record and its enrichment columns to a sheet row.
type Projector func(record gitlabapi.Record, enrichment []string) reconcile.Row

// ProjectIssue builds an issues sheet row.
func ProjectIssue(loc *time.Location) Projector {
	return func(record gitlabapi.Record, enrichment []string) reconcile.Row {
		enrichment = padEnrichment(enrichment, enrich.IssueColumns)
		return reconcile.Row{
			record.ID,
			record.IID,
			record.Project,
			reconcile.Hyperlink(record.Title, record.WebURL),
			reconcile.Capitalize(record.State),
			userName(record.Author),
			userNames(record.Assignees),
			strings.Join(record.Labels, ", "),
			record.Milestone,
			reconcile.FormatDate(record.CreatedAt, loc),
			reconcile.FormatDate(record.UpdatedAt, loc),
			reconcile.FormatDate(record.ClosedAt, loc),
			userName(record.ClosedBy),
			enrichment[0],
			enrichment[1],
			"",
		}
	}
}

// ProjectMergeRequest builds a merge requests sheet row.
func ProjectMergeRequest(loc *time.Location) Projector {
	return func(record gitlabapi.Record, enrichment []string) reconcile.Row {
		enrichment = padEnrichment(enrichment, enrich.MergeRequestColumns)
		return reconcile.Row{
			record.ID,
			record.IID,
			record.Project,
			reconcile.Hyperlink(record.Title, record.WebURL),
			reconcile.Capitalize(record.State),
			userName(record.Author),
			userNames(record.Assignees),
			userNames(record.Reviewers),
			strings.Join(record.Labels, ", "),
			record.Milestone,
			reconcile.FormatDate(record.CreatedAt, loc),
			reconcile.FormatDate(record.UpdatedAt, loc),
			reconcile.FormatDate(record.MergedAt, loc),
			userName(record.MergedBy),
			enrichment[0],
			enrichment[1],
			"",
		}
	}
}

func padEnrichment(values []string, n int) []string {
	if len(values) >= n {
		return values
	}
	out := make([]string, n)
	copy(out, values)
	return out
}

func userName(user gitlabapi.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}

func userNames(users []gitlabapi.User) string {
	names := make([]string, 0, len(users))
	for _, user := range users {
		if name := userName(user); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}
