package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
)

// Enrichment names; they also namespace cache keys.
const (
	NameIssue        = "issue"
	NameMergeRequest = "merge_request"
)

// Column counts produced by the enrichers below.
const (
	IssueColumns        = 2
	MergeRequestColumns = 2
)

// IssueSource is the subset of the GitLab data client needed for issue enrichment.
type IssueSource interface {
	ListIssueNotes(ctx context.Context, project string, iid int64) (gitlabapi.NotesResult, error)
	ListIssueLabelEvents(ctx context.Context, project string, iid int64) (gitlabapi.LabelEventsResult, error)
}

// MergeRequestSource is the subset of the GitLab data client needed for merge request enrichment.
type MergeRequestSource interface {
	ListMergeRequestNotes(ctx context.Context, project string, iid int64) (gitlabapi.NotesResult, error)
	ListMergeRequestClosesIssues(ctx context.Context, project string, iid int64) (gitlabapi.RecordsResult, error)
}

// IssueEnricher yields [reopened, label history].
func IssueEnricher(source IssueSource, loc *time.Location) Func {
	return func(ctx context.Context, record gitlabapi.Record) ([]string, error) {
		project := strconv.FormatInt(record.ProjectID, 10)

		notes, err := source.ListIssueNotes(ctx, project, record.IID)
		if err != nil {
			return nil, fmt.Errorf("list issue notes: %w", err)
		}
		if err := statusError("issue notes", notes.Status); err != nil {
			return nil, err
		}

		events, err := source.ListIssueLabelEvents(ctx, project, record.IID)
		if err != nil {
			return nil, fmt.Errorf("list label events: %w", err)
		}
		if err := statusError("label events", events.Status); err != nil {
			return nil, err
		}

		return []string{Reopened(notes.Notes), LabelHistory(events.Events, loc)}, nil
	}
}

// MergeRequestEnricher yields [first LGTM approver, closed issues].
func MergeRequestEnricher(source MergeRequestSource) Func {
	return func(ctx context.Context, record gitlabapi.Record) ([]string, error) {
		project := strconv.FormatInt(record.ProjectID, 10)

		notes, err := source.ListMergeRequestNotes(ctx, project, record.IID)
		if err != nil {
			return nil, fmt.Errorf("list merge request notes: %w", err)
		}
		if err := statusError("merge request notes", notes.Status); err != nil {
			return nil, err
		}

		closes, err := source.ListMergeRequestClosesIssues(ctx, project, record.IID)
		if err != nil {
			return nil, fmt.Errorf("list closed issues: %w", err)
		}
		if err := statusError("closed issues", closes.Status); err != nil {
			return nil, err
		}

		return []string{FirstLGTM(notes.Notes, record.Author), ClosedIssues(closes.Records)}, nil
	}
}

func statusError(endpoint string, status gitlabapi.EndpointStatus) error {
	if status == gitlabapi.EndpointStatusOK {
		return nil
	}
	return fmt.Errorf("%s: endpoint status %s", endpoint, status)
}
