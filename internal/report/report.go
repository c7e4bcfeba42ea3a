// Package report prints human-readable run summaries to the console.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/jobs"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Header prints the command banner.
func Header(w io.Writer, command string, dryRun bool) {
	suffix := ""
	if dryRun {
		suffix = " " + yellow("(dry run)")
	}
	_, _ = fmt.Fprintf(w, "\n%s%s\n", cyan("=== gitlab-sheets "+command+" ==="), suffix)
}

// Sync prints per-project outcomes and the reconciliation counts.
func Sync(w io.Writer, result jobs.SyncResult) {
	for _, project := range result.Projects {
		if project.OK() {
			_, _ = fmt.Fprintf(w, "  %s %s: %d records (%d pages)\n", green("✓"), project.Project.Name, project.Records, project.Pages)
			continue
		}
		reason := string(project.Status)
		if project.Err != nil {
			reason = project.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "  %s %s: skipped (%s)\n", red("✗"), project.Project.Name, reason)
	}

	if result.EnrichmentFailed > 0 {
		_, _ = fmt.Fprintf(w, "  %s %d records enriched with errors\n", yellow("⚠"), result.EnrichmentFailed)
	}
	if result.EnrichmentCached > 0 {
		_, _ = fmt.Fprintf(w, "  %s %d enrichments served from cache\n", gray("○"), result.EnrichmentCached)
	}
	if n := len(result.Reconcile.Duplicates); n > 0 {
		_, _ = fmt.Fprintf(w, "  %s %d duplicate keys in sheet, last row wins\n", yellow("⚠"), n)
	}
	_, _ = fmt.Fprintf(w, "  %s %d updated, %d inserted (%d fetched, %d existing)\n",
		green("✓"),
		result.Reconcile.Updated,
		result.Reconcile.Inserted,
		result.Reconcile.Fetched,
		result.Reconcile.Existing,
	)
}

// Line prints one outcome line.
func Line(w io.Writer, ok bool, format string, args ...any) {
	icon := green("✓")
	if !ok {
		icon = red("✗")
	}
	_, _ = fmt.Fprintf(w, "  %s %s\n", icon, fmt.Sprintf(format, args...))
}

// Done prints the closing line.
func Done(w io.Writer, err error, elapsed time.Duration) {
	if err != nil {
		_, _ = fmt.Fprintf(w, "\n%s failed after %s: %v\n\n", red("✗"), elapsed.Round(time.Millisecond), err)
		return
	}
	_, _ = fmt.Fprintf(w, "\n%s complete in %s\n\n", green("✓"), elapsed.Round(time.Millisecond))
}
