package sheetsapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/retry"
	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	gsheets "google.golang.org/api/sheets/v4"
)

const tracerName = "gitlab-sheets/internal/sheetsapi"

// ClientConfig configures pacing and retries for Sheets calls.
type ClientConfig struct {
	RequestsPerMinute int
	Burst             int
	Retry             retry.Policy
	Logger            *zap.Logger
}

// Client shares one request budget across every spreadsheet it opens.
type Client struct {
	svc     *gsheets.Service
	limiter *rate.Limiter
	retry   retry.Policy
	logger  *zap.Logger
}

// NewClient wraps a Sheets service with a token-bucket limiter and a retry policy.
func NewClient(svc *gsheets.Service, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	policy := cfg.Retry
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, wait time.Duration, err error) {
			logger.Warn("retrying sheets call",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}

	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		retry:   policy,
		logger:  logger,
	}
}

// Open returns the API bound to one spreadsheet.
func (c *Client) Open(spreadsheetID string) *Spreadsheet {
	return &Spreadsheet{client: c, id: spreadsheetID}
}

// Spreadsheet implements API against the live Sheets service.
type Spreadsheet struct {
	client *Client
	id     string
}

var _ API = (*Spreadsheet)(nil)

// ID returns the spreadsheet id.
func (s *Spreadsheet) ID() string {
	return s.id
}

// IsRetryable reports whether a Sheets error is worth another attempt.
func IsRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *Spreadsheet) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, end := telemetry.StartSpan(ctx, tracerName, "sheets."+op,
		attribute.String("sheets.spreadsheet_id", s.id),
	)
	err := s.client.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.client.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		return withRetryAfter(fn(ctx))
	})
	end(err)
	if err != nil {
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	return nil
}

func withRetryAfter(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests || apiErr.Header == nil {
		return err
	}
	seconds, parseErr := strconv.Atoi(strings.TrimSpace(apiErr.Header.Get("Retry-After")))
	if parseErr != nil || seconds <= 0 {
		return err
	}
	return retry.After(time.Duration(seconds)*time.Second, err)
}

// GetValues reads one range.
func (s *Spreadsheet) GetValues(ctx context.Context, a1 string, render RenderOption) ([][]string, error) {
	var resp *gsheets.ValueRange
	err := s.call(ctx, "values.get", func(ctx context.Context) error {
		var err error
		resp, err = s.client.svc.Spreadsheets.Values.Get(s.id, a1).
			ValueRenderOption(string(render)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return StringRows(resp.Values), nil
}

// BatchGetValues reads several ranges in one call, in request order.
func (s *Spreadsheet) BatchGetValues(ctx context.Context, ranges []string, render RenderOption) ([][][]string, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	var resp *gsheets.BatchGetValuesResponse
	err := s.call(ctx, "values.batchGet", func(ctx context.Context) error {
		var err error
		resp, err = s.client.svc.Spreadsheets.Values.BatchGet(s.id).
			Ranges(ranges...).
			ValueRenderOption(string(render)).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([][][]string, len(ranges))
	for i, valueRange := range resp.ValueRanges {
		if i >= len(out) || valueRange == nil {
			continue
		}
		out[i] = StringRows(valueRange.Values)
	}
	return out, nil
}

// UpdateValues overwrites one range.
func (s *Spreadsheet) UpdateValues(ctx context.Context, a1 string, rows [][]any, input ValueInputOption) error {
	return s.call(ctx, "values.update", func(ctx context.Context) error {
		_, err := s.client.svc.Spreadsheets.Values.Update(s.id, a1, &gsheets.ValueRange{Values: rows}).
			ValueInputOption(string(input)).
			Context(ctx).
			Do()
		return err
	})
}

// BatchUpdateValues overwrites several ranges in one call.
func (s *Spreadsheet) BatchUpdateValues(ctx context.Context, data []RangeValues, input ValueInputOption) error {
	if len(data) == 0 {
		return nil
	}
	request := &gsheets.BatchUpdateValuesRequest{
		ValueInputOption: string(input),
		Data:             make([]*gsheets.ValueRange, 0, len(data)),
	}
	for _, item := range data {
		request.Data = append(request.Data, &gsheets.ValueRange{Range: item.Range, Values: item.Values})
	}
	return s.call(ctx, "values.batchUpdate", func(ctx context.Context) error {
		_, err := s.client.svc.Spreadsheets.Values.BatchUpdate(s.id, request).Context(ctx).Do()
		return err
	})
}

// AppendValues appends rows after the table in a1, pushing existing rows down.
func (s *Spreadsheet) AppendValues(ctx context.Context, a1 string, rows [][]any, input ValueInputOption) error {
	return s.call(ctx, "values.append", func(ctx context.Context) error {
		_, err := s.client.svc.Spreadsheets.Values.Append(s.id, a1, &gsheets.ValueRange{Values: rows}).
			ValueInputOption(string(input)).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
}

// ClearValues clears the values of a range, keeping formatting.
func (s *Spreadsheet) ClearValues(ctx context.Context, a1 string) error {
	return s.call(ctx, "values.clear", func(ctx context.Context) error {
		_, err := s.client.svc.Spreadsheets.Values.Clear(s.id, a1, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
		return err
	})
}

// Sheets lists sheet metadata including merged ranges.
func (s *Spreadsheet) Sheets(ctx context.Context) ([]SheetInfo, error) {
	var resp *gsheets.Spreadsheet
	err := s.call(ctx, "spreadsheets.get", func(ctx context.Context) error {
		var err error
		resp, err = s.client.svc.Spreadsheets.Get(s.id).
			Fields("sheets(properties(sheetId,title,index),merges)").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]SheetInfo, 0, len(resp.Sheets))
	for _, sheet := range resp.Sheets {
		if sheet == nil || sheet.Properties == nil {
			continue
		}
		info := SheetInfo{
			ID:    sheet.Properties.SheetId,
			Title: sheet.Properties.Title,
			Index: int(sheet.Properties.Index),
		}
		for _, merge := range sheet.Merges {
			if merge != nil {
				info.Merges = append(info.Merges, gridFromAPI(merge))
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// InsertRows inserts count blank rows before the zero-based startIndex.
func (s *Spreadsheet) InsertRows(ctx context.Context, sheetID int64, startIndex, count int) error {
	if count <= 0 {
		return nil
	}
	return s.batchUpdate(ctx, "insertDimension", []*gsheets.Request{{
		InsertDimension: &gsheets.InsertDimensionRequest{
			Range: &gsheets.DimensionRange{
				SheetId:         sheetID,
				Dimension:       "ROWS",
				StartIndex:      int64(startIndex),
				EndIndex:        int64(startIndex + count),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
			InheritFromBefore: startIndex > 0,
		},
	}})
}

// MergeCells merges each range into a single cell.
func (s *Spreadsheet) MergeCells(ctx context.Context, ranges []GridRange) error {
	if len(ranges) == 0 {
		return nil
	}
	requests := make([]*gsheets.Request, 0, len(ranges))
	for _, rng := range ranges {
		requests = append(requests, &gsheets.Request{
			MergeCells: &gsheets.MergeCellsRequest{Range: rng.toAPI(), MergeType: "MERGE_ALL"},
		})
	}
	return s.batchUpdate(ctx, "mergeCells", requests)
}

// UnmergeCells unmerges every merge intersecting rng.
func (s *Spreadsheet) UnmergeCells(ctx context.Context, rng GridRange) error {
	return s.batchUpdate(ctx, "unmergeCells", []*gsheets.Request{{
		UnmergeCells: &gsheets.UnmergeCellsRequest{Range: rng.toAPI()},
	}})
}

// SetDropdown sets a ONE_OF_LIST validation rule on rng.
func (s *Spreadsheet) SetDropdown(ctx context.Context, rng GridRange, values []string) error {
	conditionValues := make([]*gsheets.ConditionValue, 0, len(values))
	for _, value := range values {
		conditionValues = append(conditionValues, &gsheets.ConditionValue{UserEnteredValue: value})
	}
	return s.batchUpdate(ctx, "setDataValidation", []*gsheets.Request{{
		SetDataValidation: &gsheets.SetDataValidationRequest{
			Range: rng.toAPI(),
			Rule: &gsheets.DataValidationRule{
				Condition: &gsheets.BooleanCondition{
					Type:   "ONE_OF_LIST",
					Values: conditionValues,
				},
				ShowCustomUi: true,
				Strict:       true,
			},
		},
	}})
}

func (s *Spreadsheet) batchUpdate(ctx context.Context, op string, requests []*gsheets.Request) error {
	return s.call(ctx, "batchUpdate."+op, func(ctx context.Context) error {
		_, err := s.client.svc.Spreadsheets.BatchUpdate(s.id, &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
}

func (g GridRange) toAPI() *gsheets.GridRange {
	out := &gsheets.GridRange{
		SheetId:          g.SheetID,
		StartRowIndex:    int64(g.StartRow),
		StartColumnIndex: int64(g.StartColumn),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
	if g.EndRow > 0 {
		out.EndRowIndex = int64(g.EndRow)
	}
	if g.EndColumn > 0 {
		out.EndColumnIndex = int64(g.EndColumn)
	}
	return out
}

func gridFromAPI(g *gsheets.GridRange) GridRange {
	return GridRange{
		SheetID:     g.SheetId,
		StartRow:    int(g.StartRowIndex),
		EndRow:      int(g.EndRowIndex),
		StartColumn: int(g.StartColumnIndex),
		EndColumn:   int(g.EndColumnIndex),
	}
}
