package gitlabapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGitLabAPIBaseURL = "https://gitlab.com/api/v4/"
	defaultPerPage          = 100
)

// EndpointStatus represents a normalized GitLab API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusUnauthorized indicates a missing or rejected token.
	EndpointStatusUnauthorized EndpointStatus = "unauthorized"
	// EndpointStatusForbidden indicates the token lacks access to the resource.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// Kind distinguishes issues from merge requests.
type Kind string

const (
	// KindIssue is a project issue.
	KindIssue Kind = "issue"
	// KindMergeRequest is a project merge request.
	KindMergeRequest Kind = "merge_request"
)

// User is a GitLab user reference.
type User struct {
	Username string
	Name     string
}

// Record is one issue or merge request.
type Record struct {
	Kind      Kind
	ID        int64
	IID       int64
	ProjectID int64
	// Project is the configured display name of the project the record was fetched for.
	Project   string
	Title     string
	WebURL    string
	State     string
	Author    User
	Assignees []User
	Reviewers []User
	Labels    []string
	Milestone string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
	MergedAt  time.Time
	ClosedBy  User
	MergedBy  User
}

// RecordsResult is the typed result for listing issues or merge requests.
type RecordsResult struct {
	Status   EndpointStatus
	Records  []Record
	Pages    int
	Metadata CallMetadata
}

// Note is one issue or merge request comment.
type Note struct {
	ID        int64
	Body      string
	Author    User
	CreatedAt time.Time
	System    bool
}

// NotesResult is the typed result for listing notes.
type NotesResult struct {
	Status   EndpointStatus
	Notes    []Note
	Metadata CallMetadata
}

// LabelEvent is one resource label event.
type LabelEvent struct {
	ID        int64
	Action    string
	Label     string
	User      User
	CreatedAt time.Time
}

// LabelEventsResult is the typed result for listing resource label events.
type LabelEventsResult struct {
	Status   EndpointStatus
	Events   []LabelEvent
	Metadata CallMetadata
}

// DataClient is a typed GitLab REST data client.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
	perPage       int
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
		perPage:       defaultPerPage,
	}, nil
}

// ListIssues lists every issue of a project, optionally filtered by state.
func (c *DataClient) ListIssues(ctx context.Context, project, state string) (RecordsResult, error) {
	return c.listRecords(ctx, KindIssue, project, state, "issues")
}

// ListMergeRequests lists every merge request of a project, optionally filtered by state.
func (c *DataClient) ListMergeRequests(ctx context.Context, project, state string) (RecordsResult, error) {
	return c.listRecords(ctx, KindMergeRequest, project, state, "merge_requests")
}

func (c *DataClient) listRecords(ctx context.Context, kind Kind, project, state, resource string) (RecordsResult, error) {
	trimmedProject := strings.TrimSpace(project)
	if trimmedProject == "" {
		return RecordsResult{}, fmt.Errorf("project is required")
	}

	query := url.Values{}
	if trimmed := strings.TrimSpace(state); trimmed != "" && trimmed != "all" {
		query.Set("state", trimmed)
	}
	query.Set("order_by", "created_at")
	query.Set("sort", "asc")

	listed, err := listAll[recordPayload](ctx, c, "list "+resource, []string{"projects", trimmedProject, resource}, query)
	if err != nil {
		return RecordsResult{}, err
	}

	result := RecordsResult{
		Status:   listed.status,
		Pages:    listed.pages,
		Metadata: listed.metadata,
	}
	for _, payload := range listed.items {
		result.Records = append(result.Records, payload.toRecord(kind))
	}
	return result, nil
}

// ListIssueNotes lists the notes of one issue in creation order.
func (c *DataClient) ListIssueNotes(ctx context.Context, project string, iid int64) (NotesResult, error) {
	return c.listNotes(ctx, project, "issues", iid)
}

// ListMergeRequestNotes lists the notes of one merge request in creation order.
func (c *DataClient) ListMergeRequestNotes(ctx context.Context, project string, iid int64) (NotesResult, error) {
	return c.listNotes(ctx, project, "merge_requests", iid)
}

func (c *DataClient) listNotes(ctx context.Context, project, resource string, iid int64) (NotesResult, error) {
	trimmedProject := strings.TrimSpace(project)
	if trimmedProject == "" {
		return NotesResult{}, fmt.Errorf("project is required")
	}
	if iid <= 0 {
		return NotesResult{}, fmt.Errorf("iid must be > 0")
	}

	query := url.Values{}
	query.Set("order_by", "created_at")
	query.Set("sort", "asc")

	listed, err := listAll[notePayload](ctx, c, "list "+resource+" notes", []string{
		"projects", trimmedProject, resource, strconv.FormatInt(iid, 10), "notes",
	}, query)
	if err != nil {
		return NotesResult{}, err
	}

	result := NotesResult{
		Status:   listed.status,
		Metadata: listed.metadata,
	}
	for _, note := range listed.items {
		result.Notes = append(result.Notes, Note{
			ID:        note.ID,
			Body:      note.Body,
			Author:    note.Author.toUser(),
			CreatedAt: parseRFC3339(note.CreatedAt),
			System:    note.System,
		})
	}
	return result, nil
}

// ListIssueLabelEvents lists the resource label events of one issue.
func (c *DataClient) ListIssueLabelEvents(ctx context.Context, project string, iid int64) (LabelEventsResult, error) {
	trimmedProject := strings.TrimSpace(project)
	if trimmedProject == "" {
		return LabelEventsResult{}, fmt.Errorf("project is required")
	}
	if iid <= 0 {
		return LabelEventsResult{}, fmt.Errorf("iid must be > 0")
	}

	listed, err := listAll[labelEventPayload](ctx, c, "list issue label events", []string{
		"projects", trimmedProject, "issues", strconv.FormatInt(iid, 10), "resource_label_events",
	}, nil)
	if err != nil {
		return LabelEventsResult{}, err
	}

	result := LabelEventsResult{
		Status:   listed.status,
		Metadata: listed.metadata,
	}
	for _, event := range listed.items {
		typed := LabelEvent{
			ID:        event.ID,
			Action:    event.Action,
			User:      event.User.toUser(),
			CreatedAt: parseRFC3339(event.CreatedAt),
		}
		if event.Label != nil {
			typed.Label = event.Label.Name
		}
		result.Events = append(result.Events, typed)
	}
	return result, nil
}

// ListMergeRequestClosesIssues lists the issues a merge request closes on merge.
func (c *DataClient) ListMergeRequestClosesIssues(ctx context.Context, project string, iid int64) (RecordsResult, error) {
	trimmedProject := strings.TrimSpace(project)
	if trimmedProject == "" {
		return RecordsResult{}, fmt.Errorf("project is required")
	}
	if iid <= 0 {
		return RecordsResult{}, fmt.Errorf("iid must be > 0")
	}

	listed, err := listAll[recordPayload](ctx, c, "list merge request closes issues", []string{
		"projects", trimmedProject, "merge_requests", strconv.FormatInt(iid, 10), "closes_issues",
	}, nil)
	if err != nil {
		return RecordsResult{}, err
	}

	result := RecordsResult{
		Status:   listed.status,
		Pages:    listed.pages,
		Metadata: listed.metadata,
	}
	for _, payload := range listed.items {
		result.Records = append(result.Records, payload.toRecord(KindIssue))
	}
	return result, nil
}

type listOutcome[T any] struct {
	status   EndpointStatus
	items    []T
	pages    int
	metadata CallMetadata
}

// listAll walks pages in increasing order until an empty page, a short page,
// or an empty X-Next-Page header. A non-success page discards what was gathered.
func listAll[T any](ctx context.Context, c *DataClient, operation string, segments []string, extra url.Values) (listOutcome[T], error) {
	outcome := listOutcome[T]{
		status: EndpointStatusOK,
	}
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		setURLPath(reqURL, segments...)
		query := reqURL.Query()
		for key, values := range extra {
			for _, value := range values {
				query.Add(key, value)
			}
		}
		query.Set("per_page", strconv.Itoa(c.perPage))
		query.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return listOutcome[T]{}, fmt.Errorf("build %s request: %w", operation, err)
		}

		resp, metadata, err := c.requestClient.Do(req)
		outcome.metadata = mergeMetadata(outcome.metadata, metadata)
		if err != nil {
			return listOutcome[T]{}, fmt.Errorf("%s request failed: %w", operation, err)
		}
		if resp == nil {
			return listOutcome[T]{}, fmt.Errorf("%s request failed: nil response", operation)
		}
		outcome.pages++

		status := endpointStatusFromHTTP(resp.StatusCode)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			outcome.status = status
			outcome.items = nil
			return outcome, nil
		}

		var payload []T
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return listOutcome[T]{}, fmt.Errorf("decode %s response: %w", operation, err)
		}
		outcome.items = append(outcome.items, payload...)

		next, ok := nextPage(resp.Header, page, len(payload), c.perPage)
		if !ok {
			break
		}
		page = next
	}

	return outcome, nil
}

func nextPage(header http.Header, page, count, perPage int) (int, bool) {
	if count == 0 {
		return 0, false
	}
	if values, present := header[http.CanonicalHeaderKey("X-Next-Page")]; present {
		raw := ""
		if len(values) > 0 {
			raw = strings.TrimSpace(values[0])
		}
		if raw == "" {
			return 0, false
		}
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > page {
			return parsed, true
		}
		return page + 1, true
	}
	if count < perPage {
		return 0, false
	}
	return page + 1, true
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitLabAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse gitlab api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse gitlab api base url: missing scheme or host")
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	if !strings.HasSuffix(path, "/api/v4") {
		path += "/api/v4"
	}
	parsed.Path = path + "/"
	parsed.RawPath = ""
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

// setURLPath appends segments to the base path. Segments may contain '/'
// (namespaced project paths), so the escaped form is kept in RawPath.
func setURLPath(target *url.URL, segments ...string) {
	base := strings.TrimSuffix(target.Path, "/")
	plain := strings.Builder{}
	escaped := strings.Builder{}
	plain.WriteString(base)
	escaped.WriteString(base)
	for _, segment := range segments {
		trimmed := strings.Trim(segment, "/")
		plain.WriteString("/")
		plain.WriteString(trimmed)
		escaped.WriteString("/")
		escaped.WriteString(url.PathEscape(trimmed))
	}
	target.Path = plain.String()
	target.RawPath = escaped.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusUnauthorized:
		return EndpointStatusUnauthorized
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullableRFC3339(raw *string) time.Time {
	if raw == nil {
		return time.Time{}
	}
	return parseRFC3339(*raw)
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.LastDecision = incoming.LastDecision
	current.LastRateHeaders = incoming.LastRateHeaders
	return current
}

type userPayload struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (u *userPayload) toUser() User {
	if u == nil {
		return User{}
	}
	return User{Username: u.Username, Name: u.Name}
}

func toUsers(payloads []userPayload) []User {
	if len(payloads) == 0 {
		return nil
	}
	users := make([]User, 0, len(payloads))
	for i := range payloads {
		users = append(users, payloads[i].toUser())
	}
	return users
}

type milestonePayload struct {
	Title string `json:"title"`
}

type recordPayload struct {
	ID        int64             `json:"id"`
	IID       int64             `json:"iid"`
	ProjectID int64             `json:"project_id"`
	Title     string            `json:"title"`
	WebURL    string            `json:"web_url"`
	State     string            `json:"state"`
	Author    *userPayload      `json:"author"`
	Assignee  *userPayload      `json:"assignee"`
	Assignees []userPayload     `json:"assignees"`
	Reviewers []userPayload     `json:"reviewers"`
	Labels    []string          `json:"labels"`
	Milestone *milestonePayload `json:"milestone"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	ClosedAt  *string           `json:"closed_at"`
	MergedAt  *string           `json:"merged_at"`
	ClosedBy  *userPayload      `json:"closed_by"`
	MergedBy  *userPayload      `json:"merged_by"`
}

func (p recordPayload) toRecord(kind Kind) Record {
	record := Record{
		Kind:      kind,
		ID:        p.ID,
		IID:       p.IID,
		ProjectID: p.ProjectID,
		Title:     p.Title,
		WebURL:    p.WebURL,
		State:     p.State,
		Author:    p.Author.toUser(),
		Assignees: toUsers(p.Assignees),
		Reviewers: toUsers(p.Reviewers),
		Labels:    p.Labels,
		CreatedAt: parseRFC3339(p.CreatedAt),
		UpdatedAt: parseRFC3339(p.UpdatedAt),
		ClosedAt:  parseNullableRFC3339(p.ClosedAt),
		MergedAt:  parseNullableRFC3339(p.MergedAt),
		ClosedBy:  p.ClosedBy.toUser(),
		MergedBy:  p.MergedBy.toUser(),
	}
	if len(record.Assignees) == 0 && p.Assignee != nil {
		record.Assignees = []User{p.Assignee.toUser()}
	}
	if p.Milestone != nil {
		record.Milestone = p.Milestone.Title
	}
	return record
}

type notePayload struct {
	ID        int64        `json:"id"`
	Body      string       `json:"body"`
	Author    *userPayload `json:"author"`
	CreatedAt string       `json:"created_at"`
	System    bool         `json:"system"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type labelEventPayload struct {
	ID        int64         `json:"id"`
	Action    string        `json:"action"`
	User      *userPayload  `json:"user"`
	CreatedAt string        `json:"created_at"`
	Label     *labelPayload `json:"label"`
}
