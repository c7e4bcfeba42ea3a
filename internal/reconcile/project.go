package reconcile

import (
	"strings"
	"time"
)

// FallbackLabel replaces a hyperlink when the title or URL is missing.
const FallbackLabel = "No link"

// DateLayout renders timestamps as weekday, month, day and year.
const DateLayout = "Mon, Jan 2, 2006"

// Hyperlink builds a HYPERLINK formula. Quotes in the title are doubled; the URL is copied verbatim.
func Hyperlink(title, url string) string {
	if title == "" || url == "" {
		return FallbackLabel
	}
	return `=HYPERLINK("` + url + `","` + strings.ReplaceAll(title, `"`, `""`) + `")`
}

// FormatDate renders t in loc, or "" for the zero time.
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Capitalize upper-cases the first letter of a state such as "opened".
func Capitalize(state string) string {
	if state == "" {
		return ""
	}
	return strings.ToUpper(state[:1]) + state[1:]
}

// IsFormula reports whether a cell value will be evaluated as a formula.
func IsFormula(value any) bool {
	text, ok := value.(string)
	return ok && strings.HasPrefix(text, "=")
}
