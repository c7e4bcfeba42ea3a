package enrich

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"github.com/cam3ron2/gitlab-sheets/internal/reconcile"
)

var lgtmPattern = regexp.MustCompile(`(?i)\bLGTM\b`)

// FirstLGTM returns the display name of the earliest non-author who left an LGTM note.
// It returns "" when nobody did.
func FirstLGTM(notes []gitlabapi.Note, author gitlabapi.User) string {
	var (
		first gitlabapi.Note
		found bool
	)
	for _, note := range notes {
		if note.System || note.Author.Username == author.Username {
			continue
		}
		if !lgtmPattern.MatchString(note.Body) {
			continue
		}
		if !found || note.CreatedAt.Before(first.CreatedAt) {
			first = note
			found = true
		}
	}
	if !found {
		return ""
	}
	return displayName(first.Author)
}

// ClosedIssues renders issue references as "#1, #4".
func ClosedIssues(records []gitlabapi.Record) string {
	refs := make([]string, 0, len(records))
	for _, record := range records {
		refs = append(refs, "#"+strconv.FormatInt(record.IID, 10))
	}
	return strings.Join(refs, ", ")
}

// Reopened reports "Yes" when any system note records a reopen.
func Reopened(notes []gitlabapi.Note) string {
	for _, note := range notes {
		if note.System && strings.HasPrefix(strings.TrimSpace(note.Body), "reopened") {
			return "Yes"
		}
	}
	return "No"
}

// LabelHistory renders label events oldest first, one per line.
func LabelHistory(events []gitlabapi.LabelEvent, loc *time.Location) string {
	sorted := append([]gitlabapi.LabelEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	lines := make([]string, 0, len(sorted))
	for _, event := range sorted {
		if event.Label == "" {
			continue
		}
		sign := "+"
		if event.Action == "remove" {
			sign = "-"
		}
		lines = append(lines, fmt.Sprintf("%s%s (%s)", sign, event.Label, reconcile.FormatDate(event.CreatedAt, loc)))
	}
	return strings.Join(lines, "\n")
}

func displayName(user gitlabapi.User) string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}
