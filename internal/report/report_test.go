package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"github.com/cam3ron2/gitlab-sheets/internal/jobs"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestSync(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	Sync(&out, jobs.SyncResult{
		Name: "issue",
		Projects: []jobs.ProjectOutcome{
			{Project: config.Project{ID: "1", Name: "api"}, Status: gitlabapi.EndpointStatusOK, Records: 12, Pages: 1},
			{Project: config.Project{ID: "2", Name: "web"}, Status: gitlabapi.EndpointStatusForbidden},
			{Project: config.Project{ID: "3", Name: "ops"}, Err: errors.New("connection reset")},
		},
		EnrichmentFailed: 2,
		Reconcile:        reconcile.Result{Fetched: 12, Existing: 10, Updated: 9, Inserted: 3, Duplicates: []string{"1|1|api"}},
	})

	body := out.String()
	for _, want := range []string{
		"✓ api: 12 records (1 pages)",
		"✗ web: skipped (forbidden)",
		"✗ ops: skipped (connection reset)",
		"⚠ 2 records enriched with errors",
		"⚠ 1 duplicate keys in sheet",
		"✓ 9 updated, 3 inserted (12 fetched, 10 existing)",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("summary missing %q:\n%s", want, body)
		}
	}
}

func TestDone(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	Done(&out, nil, 1500*time.Millisecond)
	Done(&out, errors.New("quota exceeded"), time.Second)
	Line(&out, false, "dropdown on %s", "Tasks!C2:C")

	body := out.String()
	for _, want := range []string{"✓ complete in 1.5s", "✗ failed after 1s: quota exceeded", "✗ dropdown on Tasks!C2:C"} {
		if !strings.Contains(body, want) {
			t.Fatalf("output missing %q:\n%s", want, body)
		}
	}
}
