package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/cache"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Sentinel fills every enrichment column of a record whose enrichment failed.
const Sentinel = "Error"

// Outcome labels for Config.Observe.
const (
	OutcomeFetched = "fetched"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
)

// Func computes the enrichment columns of one record.
type Func func(ctx context.Context, record gitlabapi.Record) ([]string, error)

// Config configures a Runner.
type Config struct {
	Concurrency int
	Timeout     time.Duration
	Cache       cache.Cache
	Logger      *zap.Logger
	// Observe is called once per record with its outcome. It may be nil.
	Observe func(name, outcome string)
}

// Result is the enrichment of one record, aligned with the input position.
type Result struct {
	Values []string
	Err    error
	Cached bool
}

// Runner fans enrichment out over records with a fixed concurrency limit.
type Runner struct {
	concurrency int64
	timeout     time.Duration
	cache       cache.Cache
	logger      *zap.Logger
	observe     func(name, outcome string)
}

// NewRunner creates a runner. Concurrency defaults to 5.
func NewRunner(cfg Config) *Runner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observe := cfg.Observe
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Runner{
		concurrency: int64(concurrency),
		timeout:     cfg.Timeout,
		cache:       cfg.Cache,
		logger:      logger,
		observe:     observe,
	}
}

// Sentinels returns a row of n sentinel values.
func Sentinels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Sentinel
	}
	return out
}

// Run enriches every record and returns results in input order. A failing record gets
// sentinel values; the others are unaffected.
func (r *Runner) Run(ctx context.Context, name string, records []gitlabapi.Record, columns int, fn Func) []Result {
	results := make([]Result, len(records))
	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup

	for i := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(records); j++ {
				results[j] = r.failed(name, records[j], columns, err)
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = r.enrichOne(ctx, name, records[i], columns, fn)
		}(i)
	}
	wg.Wait()
	return results
}

func (r *Runner) enrichOne(ctx context.Context, name string, record gitlabapi.Record, columns int, fn Func) Result {
	key := CacheKey(name, record)
	if r.cache != nil {
		cached, ok, err := cache.GetJSON[[]string](ctx, r.cache, key)
		if err != nil {
			r.logger.Debug("enrichment cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok && len(cached) == columns {
			r.observe(name, OutcomeCached)
			return Result{Values: cached, Cached: true}
		}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	values, err := fn(callCtx, record)
	if err == nil && len(values) != columns {
		err = fmt.Errorf("enrichment returned %d values, want %d", len(values), columns)
	}
	if err != nil {
		return r.failed(name, record, columns, err)
	}

	if r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, key, values); err != nil {
			r.logger.Debug("enrichment cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	r.observe(name, OutcomeFetched)
	return Result{Values: values}
}

func (r *Runner) failed(name string, record gitlabapi.Record, columns int, err error) Result {
	r.logger.Warn("enrichment failed, writing sentinel",
		zap.String("enrichment", name),
		zap.Int64("project_id", record.ProjectID),
		zap.Int64("iid", record.IID),
		zap.Error(err),
	)
	r.observe(name, OutcomeFailed)
	return Result{Values: Sentinels(columns), Err: err}
}

// CacheKey identifies one record revision; a newer updated_at never matches an older entry.
func CacheKey(name string, record gitlabapi.Record) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s",
		name,
		record.Kind,
		record.ProjectID,
		record.IID,
		record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
}
