package gitlabapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitHeaders contains parsed GitLab rate-limit response headers.
type RateLimitHeaders struct {
	Limit      int
	Remaining  int
	ResetUnix  int64
	RetryAfter time.Duration
	Throttled  bool
	// Present is false when the instance does not send RateLimit-* headers at all.
	Present bool
}

// Decision represents a rate-limit action decision.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy evaluates rate-limit actions from parsed headers.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	ThrottledBackoff      time.Duration
	Now                   func() time.Time
}

// ParseRateLimitHeaders parses GitLab RateLimit-* and Retry-After headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	if raw := header.Get("RateLimit-Remaining"); raw != "" {
		parsed.Present = true
		parsed.Remaining = parseInt(raw)
	}
	parsed.Limit = parseInt(header.Get("RateLimit-Limit"))
	parsed.ResetUnix = parseInt64(header.Get("RateLimit-Reset"))

	retryAfterSeconds := parseInt(header.Get("Retry-After"))
	if retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}

	if statusCode == http.StatusTooManyRequests {
		parsed.Throttled = true
	}
	return parsed
}

// Evaluate decides whether calls may continue or should pause.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.Throttled {
		waitFor := p.ThrottledBackoff
		if headers.RetryAfter > waitFor {
			waitFor = headers.RetryAfter
		}
		return Decision{
			Allow:   false,
			WaitFor: waitFor,
			Reason:  "throttled",
		}
	}

	if !headers.Present || headers.Remaining >= p.MinRemainingThreshold {
		return Decision{
			Allow:  true,
			Reason: "within_budget",
		}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{
			Allow:  true,
			Reason: "reset_elapsed",
		}
	}

	return Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  "remaining_below_threshold",
	}
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
