package gitlabapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/retry"
)

type fakeDoer struct {
	mu        sync.Mutex
	responses []*http.Response
	errors    []error
	requests  []*http.Request
	callCount int
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.callCount
	d.callCount++
	d.requests = append(d.requests, req)

	var resp *http.Response
	if idx < len(d.responses) {
		resp = d.responses[idx]
	}
	var err error
	if idx < len(d.errors) {
		err = d.errors[idx]
	}
	if resp == nil && err == nil {
		err = fmt.Errorf("unexpected request %d to %s", idx, req.URL)
	}
	return resp, err
}

func newResponse(status int, headers map[string]string, body string) *http.Response {
	header := make(http.Header)
	for key, value := range headers {
		header.Set(key, value)
	}
	responseBody := io.NopCloser(strings.NewReader(body))
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       responseBody,
	}
}

func TestClientDo(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	ratePolicy := RateLimitPolicy{
		MinRemainingThreshold: 10,
		MinResetBuffer:        5 * time.Second,
		ThrottledBackoff:      30 * time.Second,
		Now: func() time.Time {
			return now
		},
	}

	testCases := []struct {
		name          string
		doer          *fakeDoer
		maxAttempts   int
		wantAttempts  int
		wantErr       bool
		wantStatus    int
		wantSleepCall int
	}{
		{
			name: "retries_transient_5xx_and_succeeds",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusBadGateway, map[string]string{}, "boom"),
					newResponse(http.StatusOK, map[string]string{"RateLimit-Remaining": "1999"}, "[]"),
				},
			},
			maxAttempts:   3,
			wantAttempts:  2,
			wantStatus:    http.StatusOK,
			wantSleepCall: 1,
		},
		{
			name: "does_not_retry_permanent_4xx",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusNotFound, map[string]string{}, "not found"),
				},
			},
			maxAttempts:   3,
			wantAttempts:  1,
			wantStatus:    http.StatusNotFound,
			wantSleepCall: 0,
		},
		{
			name: "throttled_waits_then_retries",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusTooManyRequests, map[string]string{"Retry-After": "90"}, "slow down"),
					newResponse(http.StatusOK, map[string]string{}, "[]"),
				},
			},
			maxAttempts:   3,
			wantAttempts:  2,
			wantStatus:    http.StatusOK,
			wantSleepCall: 1,
		},
		{
			name: "throttling_surfaces_error_after_cap",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusTooManyRequests, map[string]string{}, ""),
					newResponse(http.StatusTooManyRequests, map[string]string{}, ""),
				},
			},
			maxAttempts:   2,
			wantAttempts:  2,
			wantErr:       true,
			wantSleepCall: 1,
		},
		{
			name: "low_budget_keeps_response_and_paces",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusOK, map[string]string{
						"RateLimit-Remaining": "2",
						"RateLimit-Reset":     fmt.Sprint(now.Add(10 * time.Second).Unix()),
					}, "[]"),
				},
			},
			maxAttempts:   3,
			wantAttempts:  1,
			wantStatus:    http.StatusOK,
			wantSleepCall: 1,
		},
		{
			name: "network_errors_retry_until_exhausted",
			doer: &fakeDoer{
				errors: []error{
					fmt.Errorf("network down"),
					fmt.Errorf("network down"),
				},
			},
			maxAttempts:   2,
			wantAttempts:  2,
			wantErr:       true,
			wantSleepCall: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sleepCalls := 0
			policy := retry.New(retry.Config{
				MaxAttempts:    tc.maxAttempts,
				InitialBackoff: time.Second,
				MaxBackoff:     5 * time.Second,
			})
			policy.Sleep = func(context.Context, time.Duration) error {
				sleepCalls++
				return nil
			}
			client := NewClient(tc.doer, policy, ratePolicy)

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://gitlab.example.com/api/v4/projects", nil)
			if err != nil {
				t.Fatalf("NewRequestWithContext() unexpected error: %v", err)
			}

			resp, metadata, callErr := client.Do(req)
			if resp != nil && resp.Body != nil {
				t.Cleanup(func() {
					_ = resp.Body.Close()
				})
			}
			if tc.wantErr && callErr == nil {
				t.Fatalf("Do() expected error, got nil")
			}
			if !tc.wantErr && callErr != nil {
				t.Fatalf("Do() unexpected error: %v", callErr)
			}
			if metadata.Attempts != tc.wantAttempts {
				t.Fatalf("Attempts = %d, want %d", metadata.Attempts, tc.wantAttempts)
			}
			if tc.wantStatus == 0 {
				if resp != nil {
					t.Fatalf("response = %v, want nil", resp)
				}
			} else if resp == nil || resp.StatusCode != tc.wantStatus {
				got := 0
				if resp != nil {
					got = resp.StatusCode
				}
				t.Fatalf("status = %d, want %d", got, tc.wantStatus)
			}
			if sleepCalls != tc.wantSleepCall {
				t.Fatalf("sleepCalls = %d, want %d", sleepCalls, tc.wantSleepCall)
			}
		})
	}
}
