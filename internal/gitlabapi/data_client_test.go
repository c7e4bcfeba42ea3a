package gitlabapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/retry"
)

func newTestRequestClient(doer HTTPDoer) *Client {
	policy := RateLimitPolicy{
		Now: func() time.Time {
			return time.Unix(1739836800, 0)
		},
	}
	return NewClient(doer, retry.Policy{MaxAttempts: 1}, policy)
}

func recordsJSON(startID, count int) string {
	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := startID + i
		items = append(items, fmt.Sprintf(
			`{"id":%d,"iid":%d,"project_id":7,"title":"Item %d","web_url":"https://gitlab.example.com/g/p/-/issues/%d","state":"opened","created_at":"2024-01-02T10:00:00Z"}`,
			id, i+1, id, i+1,
		))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func contains(value, substr string) bool {
	return strings.Contains(value, substr)
}

func TestNewDataClient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		baseURL     string
		client      *Client
		wantBase    string
		wantErr     bool
		errContains string
	}{
		{
			name:     "uses_default_base_url",
			baseURL:  "",
			client:   newTestRequestClient(&fakeDoer{}),
			wantBase: "https://gitlab.com/api/v4/",
		},
		{
			name:     "appends_api_prefix",
			baseURL:  "https://gitlab.example.com",
			client:   newTestRequestClient(&fakeDoer{}),
			wantBase: "https://gitlab.example.com/api/v4/",
		},
		{
			name:     "keeps_existing_api_prefix",
			baseURL:  "https://gitlab.example.com/api/v4",
			client:   newTestRequestClient(&fakeDoer{}),
			wantBase: "https://gitlab.example.com/api/v4/",
		},
		{
			name:        "rejects_invalid_base_url",
			baseURL:     "://bad-url",
			client:      newTestRequestClient(&fakeDoer{}),
			wantErr:     true,
			errContains: "parse gitlab api base url",
		},
		{
			name:        "rejects_nil_client",
			baseURL:     "https://gitlab.com",
			client:      nil,
			wantErr:     true,
			errContains: "request client is required",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient(tc.baseURL, tc.client)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewDataClient() expected error, got nil")
				}
				if tc.errContains != "" && !contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}
			if got := client.baseURL.String(); got != tc.wantBase {
				t.Fatalf("baseURL = %q, want %q", got, tc.wantBase)
			}
		})
	}
}

func TestDataClientListIssuesStopsOnShortPage(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, recordsJSON(1, 100)),
			newResponse(http.StatusOK, nil, recordsJSON(101, 100)),
			newResponse(http.StatusOK, nil, recordsJSON(201, 37)),
		},
	}
	client, err := NewDataClient("https://gitlab.example.com", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListIssues(context.Background(), "7", "opened")
	if err != nil {
		t.Fatalf("ListIssues() unexpected error: %v", err)
	}
	if doer.callCount != 3 {
		t.Fatalf("requests = %d, want 3", doer.callCount)
	}
	if got.Pages != 3 {
		t.Fatalf("Pages = %d, want 3", got.Pages)
	}
	if len(got.Records) != 237 {
		t.Fatalf("len(Records) = %d, want 237", len(got.Records))
	}
	if got.Records[0].ID != 1 || got.Records[236].ID != 237 {
		t.Fatalf("records out of order: first=%d last=%d", got.Records[0].ID, got.Records[236].ID)
	}
	if got.Records[0].Kind != KindIssue {
		t.Fatalf("Kind = %q, want %q", got.Records[0].Kind, KindIssue)
	}

	for i, req := range doer.requests {
		query := req.URL.Query()
		if query.Get("page") != fmt.Sprint(i+1) {
			t.Fatalf("request %d page = %q, want %d", i, query.Get("page"), i+1)
		}
		if query.Get("per_page") != "100" {
			t.Fatalf("request %d per_page = %q, want 100", i, query.Get("per_page"))
		}
		if query.Get("state") != "opened" {
			t.Fatalf("request %d state = %q, want opened", i, query.Get("state"))
		}
		if req.URL.Path != "/api/v4/projects/7/issues" {
			t.Fatalf("request %d path = %q", i, req.URL.Path)
		}
	}
}

func TestDataClientListMergeRequestsFollowsNextPageHeader(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{"X-Next-Page": "2"}, recordsJSON(1, 2)),
			newResponse(http.StatusOK, map[string]string{"X-Next-Page": ""}, recordsJSON(3, 1)),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListMergeRequests(context.Background(), "group/project", "all")
	if err != nil {
		t.Fatalf("ListMergeRequests() unexpected error: %v", err)
	}
	if doer.callCount != 2 {
		t.Fatalf("requests = %d, want 2", doer.callCount)
	}
	if len(got.Records) != 3 || got.Records[2].Kind != KindMergeRequest {
		t.Fatalf("records = %#v, want 3 merge requests", got.Records)
	}
	if doer.requests[0].URL.Query().Has("state") {
		t.Fatalf("state=all should not be sent, got %q", doer.requests[0].URL.RawQuery)
	}
	if got := doer.requests[0].URL.EscapedPath(); got != "/api/v4/projects/group%2Fproject/merge_requests" {
		t.Fatalf("escaped path = %q", got)
	}
}

func TestDataClientListIssuesStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{"X-Next-Page": "2"}, recordsJSON(1, 100)),
			newResponse(http.StatusOK, map[string]string{"X-Next-Page": "3"}, `[]`),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListIssues(context.Background(), "7", "")
	if err != nil {
		t.Fatalf("ListIssues() unexpected error: %v", err)
	}
	if doer.callCount != 2 || len(got.Records) != 100 {
		t.Fatalf("requests=%d records=%d, want 2/100", doer.callCount, len(got.Records))
	}
}

func TestDataClientListIssuesStatusHandling(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		wantStatus EndpointStatus
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantStatus: EndpointStatusUnauthorized},
		{name: "forbidden", statusCode: http.StatusForbidden, wantStatus: EndpointStatusForbidden},
		{name: "not_found", statusCode: http.StatusNotFound, wantStatus: EndpointStatusNotFound},
		{name: "unknown", statusCode: http.StatusTeapot, wantStatus: EndpointStatusUnknown},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doer := &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusOK, nil, recordsJSON(1, 100)),
					newResponse(tc.statusCode, nil, `{"message":"nope"}`),
				},
			}
			client, err := NewDataClient("", newTestRequestClient(doer))
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}

			got, err := client.ListIssues(context.Background(), "7", "")
			if err != nil {
				t.Fatalf("ListIssues() unexpected error: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("Status = %q, want %q", got.Status, tc.wantStatus)
			}
			if len(got.Records) != 0 {
				t.Fatalf("len(Records) = %d, want 0 after failed page", len(got.Records))
			}
		})
	}
}

func TestDataClientListIssuesDecodesFields(t *testing.T) {
	t.Parallel()

	body := `[{
		"id": 100, "iid": 1, "project_id": 7,
		"title": "Fix \"login\"", "web_url": "https://gitlab.example.com/g/p/-/issues/1",
		"state": "closed",
		"author": {"username": "alice", "name": "Alice"},
		"assignee": {"username": "bob", "name": "Bob"},
		"labels": ["bug", "backend"],
		"milestone": {"title": "M1"},
		"created_at": "2024-01-02T10:00:00Z",
		"updated_at": "2024-01-03T10:00:00Z",
		"closed_at": "2024-01-04T10:00:00Z",
		"closed_by": {"username": "carol", "name": "Carol"}
	}]`
	doer := &fakeDoer{responses: []*http.Response{newResponse(http.StatusOK, nil, body)}}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	got, err := client.ListIssues(context.Background(), "7", "")
	if err != nil {
		t.Fatalf("ListIssues() unexpected error: %v", err)
	}
	if len(got.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(got.Records))
	}
	record := got.Records[0]
	if record.Title != `Fix "login"` || record.Milestone != "M1" || record.Author.Username != "alice" {
		t.Fatalf("record = %#v", record)
	}
	if len(record.Assignees) != 1 || record.Assignees[0].Username != "bob" {
		t.Fatalf("Assignees = %#v, want bob from single assignee", record.Assignees)
	}
	if record.ClosedBy.Username != "carol" {
		t.Fatalf("ClosedBy = %#v, want carol", record.ClosedBy)
	}
	wantClosed := time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)
	if !record.ClosedAt.Equal(wantClosed) {
		t.Fatalf("ClosedAt = %s, want %s", record.ClosedAt, wantClosed)
	}
	if !record.MergedAt.IsZero() {
		t.Fatalf("MergedAt = %s, want zero", record.MergedAt)
	}
}

func TestDataClientEnrichmentEndpoints(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, nil, `[
				{"id":1,"body":"LGTM","author":{"username":"bob"},"created_at":"2024-01-02T10:00:00Z","system":false},
				{"id":2,"body":"reopened","author":{"username":"alice"},"created_at":"2024-01-03T10:00:00Z","system":true}
			]`),
			newResponse(http.StatusOK, nil, `[
				{"id":9,"action":"add","label":{"name":"bug"},"user":{"username":"alice"},"created_at":"2024-01-02T10:00:00Z"}
			]`),
			newResponse(http.StatusOK, nil, recordsJSON(500, 2)),
		},
	}
	client, err := NewDataClient("", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	notes, err := client.ListMergeRequestNotes(context.Background(), "7", 3)
	if err != nil {
		t.Fatalf("ListMergeRequestNotes() unexpected error: %v", err)
	}
	if len(notes.Notes) != 2 || !notes.Notes[1].System || notes.Notes[0].Author.Username != "bob" {
		t.Fatalf("notes = %#v", notes.Notes)
	}
	if got := doer.requests[0].URL.Path; got != "/api/v4/projects/7/merge_requests/3/notes" {
		t.Fatalf("notes path = %q", got)
	}

	events, err := client.ListIssueLabelEvents(context.Background(), "7", 4)
	if err != nil {
		t.Fatalf("ListIssueLabelEvents() unexpected error: %v", err)
	}
	if len(events.Events) != 1 || events.Events[0].Label != "bug" || events.Events[0].Action != "add" {
		t.Fatalf("events = %#v", events.Events)
	}
	if got := doer.requests[1].URL.Path; got != "/api/v4/projects/7/issues/4/resource_label_events" {
		t.Fatalf("label events path = %q", got)
	}

	closes, err := client.ListMergeRequestClosesIssues(context.Background(), "7", 3)
	if err != nil {
		t.Fatalf("ListMergeRequestClosesIssues() unexpected error: %v", err)
	}
	if len(closes.Records) != 2 || closes.Records[0].Kind != KindIssue {
		t.Fatalf("closes = %#v", closes.Records)
	}

	if _, err := client.ListIssueNotes(context.Background(), "7", 0); err == nil {
		t.Fatalf("ListIssueNotes() expected error for iid 0")
	}
}
