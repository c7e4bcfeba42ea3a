package gitlabapi

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		headers    map[string]string
		want       RateLimitHeaders
	}{
		{
			name:       "parses_standard_headers",
			statusCode: http.StatusOK,
			headers: map[string]string{
				"RateLimit-Limit":     "2000",
				"RateLimit-Remaining": "1999",
				"RateLimit-Reset":     "1739837000",
			},
			want: RateLimitHeaders{
				Limit:     2000,
				Remaining: 1999,
				ResetUnix: 1739837000,
				Present:   true,
			},
		},
		{
			name:       "detects_throttling_with_retry_after",
			statusCode: http.StatusTooManyRequests,
			headers: map[string]string{
				"Retry-After": "60",
			},
			want: RateLimitHeaders{
				RetryAfter: 60 * time.Second,
				Throttled:  true,
			},
		},
		{
			name:       "handles_invalid_values_safely",
			statusCode: http.StatusOK,
			headers: map[string]string{
				"RateLimit-Remaining": "abc",
				"RateLimit-Reset":     "xyz",
				"Retry-After":         "nan",
			},
			want: RateLimitHeaders{
				Present: true,
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}

			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	policy := RateLimitPolicy{
		MinRemainingThreshold: 50,
		MinResetBuffer:        5 * time.Second,
		ThrottledBackoff:      30 * time.Second,
		Now: func() time.Time {
			return now
		},
	}

	testCases := []struct {
		name    string
		headers RateLimitHeaders
		want    Decision
	}{
		{
			name:    "allows_without_headers",
			headers: RateLimitHeaders{},
			want:    Decision{Allow: true, Reason: "within_budget"},
		},
		{
			name:    "allows_within_budget",
			headers: RateLimitHeaders{Present: true, Remaining: 500},
			want:    Decision{Allow: true, Reason: "within_budget"},
		},
		{
			name:    "throttled_uses_larger_of_backoff_and_retry_after",
			headers: RateLimitHeaders{Throttled: true, RetryAfter: 45 * time.Second},
			want:    Decision{Allow: false, WaitFor: 45 * time.Second, Reason: "throttled"},
		},
		{
			name:    "throttled_uses_backoff_floor",
			headers: RateLimitHeaders{Throttled: true, RetryAfter: time.Second},
			want:    Decision{Allow: false, WaitFor: 30 * time.Second, Reason: "throttled"},
		},
		{
			name:    "low_budget_waits_for_reset",
			headers: RateLimitHeaders{Present: true, Remaining: 3, ResetUnix: now.Add(20 * time.Second).Unix()},
			want:    Decision{Allow: false, WaitFor: 25 * time.Second, Reason: "remaining_below_threshold"},
		},
		{
			name:    "low_budget_after_reset_allows",
			headers: RateLimitHeaders{Present: true, Remaining: 3, ResetUnix: now.Add(-time.Second).Unix()},
			want:    Decision{Allow: true, Reason: "reset_elapsed"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := policy.Evaluate(tc.headers)
			if got != tc.want {
				t.Fatalf("Evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
