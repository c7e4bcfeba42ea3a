package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/cache"
	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/gitlabapi"
	"github.com/cam3ron2/gitlab-sheets/internal/retry"
	"github.com/cam3ron2/gitlab-sheets/internal/sheetsapi"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// BackendOptions selects which backends a command needs.
type BackendOptions struct {
	NeedsGitLab bool
	DryRun      bool
	Logger      *zap.Logger

	// SheetsOptions are appended to the Sheets service options. Tests point them at a fake server.
	SheetsOptions []option.ClientOption
}

// Backends are the clients one command run works with.
type Backends struct {
	GitLab       *gitlabapi.DataClient
	Sheets       sheetsapi.API
	Open         func(spreadsheetID string) sheetsapi.API
	Cache        cache.Cache
	CacheHealthy bool
}

// Close releases the cache connection.
func (b *Backends) Close() error {
	if b == nil || b.Cache == nil {
		return nil
	}
	return b.Cache.Close()
}

// NewBackends builds the GitLab client, the Sheets client and the enrichment cache.
func NewBackends(ctx context.Context, cfg *config.Config, opts BackendOptions) (*Backends, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.New(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	})

	backends := &Backends{}
	if opts.NeedsGitLab {
		dataClient, err := newGitLabClient(cfg, policy)
		if err != nil {
			return nil, err
		}
		backends.GitLab = dataClient
	}

	open, err := newSheetsOpener(ctx, cfg, policy, opts, logger)
	if err != nil {
		return nil, err
	}
	backends.Open = open
	backends.Sheets = open(cfg.Sheets.SpreadsheetID)

	if opts.NeedsGitLab {
		backends.Cache, backends.CacheHealthy = newCache(ctx, cfg.Cache, logger)
	} else {
		backends.CacheHealthy = true
	}
	return backends, nil
}

func newGitLabClient(cfg *config.Config, policy retry.Policy) (*gitlabapi.DataClient, error) {
	httpClient, err := gitlabapi.NewTokenHTTPClient(gitlabapi.TokenAuthConfig{
		Token:   cfg.GitLab.Token,
		Timeout: cfg.GitLab.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build gitlab http client: %w", err)
	}
	requestClient := gitlabapi.NewClient(httpClient, policy, gitlabapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		ThrottledBackoff:      cfg.RateLimit.ThrottledBackoff,
	})
	dataClient, err := gitlabapi.NewDataClient(cfg.GitLab.BaseURL, requestClient)
	if err != nil {
		return nil, fmt.Errorf("build gitlab data client: %w", err)
	}
	return dataClient, nil
}

func newSheetsOpener(
	ctx context.Context,
	cfg *config.Config,
	policy retry.Policy,
	opts BackendOptions,
	logger *zap.Logger,
) (func(string) sheetsapi.API, error) {
	svc, err := sheetsapi.NewService(ctx, []byte(cfg.Sheets.CredentialsJSON), opts.SheetsOptions...)
	if err != nil {
		return nil, fmt.Errorf("build sheets service: %w", err)
	}
	client := sheetsapi.NewClient(svc, sheetsapi.ClientConfig{
		RequestsPerMinute: cfg.Sheets.WritesPerMinute,
		Burst:             cfg.Sheets.WriteBurst,
		Retry:             policy,
		Logger:            logger,
	})
	return func(spreadsheetID string) sheetsapi.API {
		var api sheetsapi.API = client.Open(spreadsheetID)
		if opts.DryRun {
			api = sheetsapi.NewDryRun(api, logger.With(zap.String("spreadsheet_id", spreadsheetID)))
		}
		return api
	}, nil
}

func newRedisClient(cfg config.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// newCache reports false as its second result when a requested redis cache was unreachable and
// the run fell back to memory.
func newCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cache.Cache, bool) {
	memory := cache.NewMemoryCache(cfg.Capacity, cfg.TTL)
	if !strings.EqualFold(strings.TrimSpace(cfg.Backend), "redis") {
		return memory, true
	}

	redisClient := newRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		logger.Warn("failed to reach redis cache; falling back to in-memory cache",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
		return memory, false
	}

	return cache.NewRedisCache(redisClient, cache.RedisCacheConfig{
		Namespace: cfg.KeyPrefix,
		TTL:       cfg.TTL,
	}), true
}
