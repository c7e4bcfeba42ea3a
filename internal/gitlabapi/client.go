package gitlabapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cam3ron2/gitlab-sheets/internal/retry"
	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// StatusError is a retryable HTTP outcome.
type StatusError struct {
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gitlab responded %d", e.StatusCode)
	}
	return fmt.Sprintf("gitlab responded %d (%s)", e.StatusCode, e.Reason)
}

// Client wraps GitLab HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      retry.Policy
	ratePolicy RateLimitPolicy
}

// NewClient creates a GitLab API client wrapper.
func NewClient(doer HTTPDoer, policy retry.Policy, ratePolicy RateLimitPolicy) *Client {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      policy,
		ratePolicy: ratePolicy,
	}
}

// Do executes a request with retry and rate-limit awareness.
// Non-transient error statuses are returned as responses, not errors.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("gitlab-sheets/internal/gitlabapi").Start(
			ctx,
			"gitlab.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("gitlab.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	var result *http.Response
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		metadata.Attempts++
		attempt := metadata.Attempts

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("gitlab.attempt", attempt),
				))
			}
			return err
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("gitlab.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("gitlab.rate_limit_remaining", headers.Remaining),
				attribute.Int64("gitlab.rate_limit_reset_unix", headers.ResetUnix),
				attribute.Bool("gitlab.rate_limit_allow", decision.Allow),
				attribute.String("gitlab.rate_limit_reason", decision.Reason),
			))
		}

		if headers.Throttled {
			closeBody(resp)
			return retry.After(decision.WaitFor, &StatusError{StatusCode: resp.StatusCode, Reason: decision.Reason})
		}
		if isTransientStatus(resp.StatusCode) {
			closeBody(resp)
			return &StatusError{StatusCode: resp.StatusCode}
		}

		// A usable response with a nearly spent budget is kept; the pause
		// applies to whatever request comes next.
		if !decision.Allow && decision.WaitFor > 0 {
			sleep := c.retry.Sleep
			if sleep == nil {
				sleep = retry.SleepContext
			}
			if err := sleep(ctx, decision.WaitFor); err != nil {
				closeBody(resp)
				return err
			}
		}
		result = resp
		return nil
	})
	if err != nil {
		if span != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, metadata, err
	}

	if span != nil {
		span.SetStatus(codes.Ok, "request completed")
	}
	return result, metadata, nil
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
