package app

import (
	"context"
	"testing"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/cache"
	"github.com/cam3ron2/gitlab-sheets/internal/config"
	"github.com/cam3ron2/gitlab-sheets/internal/retry"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCache(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		cfg         config.CacheConfig
		wantHealthy bool
		wantWarn    int
	}{
		{
			name:        "memory_default",
			cfg:         config.CacheConfig{Backend: "memory", Capacity: 10, TTL: time.Hour},
			wantHealthy: true,
		},
		{
			name:        "unreachable_redis_falls_back",
			cfg:         config.CacheConfig{Backend: "redis", RedisAddr: "127.0.0.1:1", Capacity: 10, TTL: time.Hour},
			wantHealthy: false,
			wantWarn:    1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.WarnLevel)
			backend, healthy := newCache(context.Background(), tc.cfg, zap.New(core))
			t.Cleanup(func() { _ = backend.Close() })

			if healthy != tc.wantHealthy {
				t.Fatalf("healthy = %t, want %t", healthy, tc.wantHealthy)
			}
			if _, ok := backend.(*cache.MemoryCache); !ok {
				t.Fatalf("cache type = %T, want *cache.MemoryCache", backend)
			}
			if logs.Len() != tc.wantWarn {
				t.Fatalf("warnings = %d, want %d", logs.Len(), tc.wantWarn)
			}
		})
	}
}

func TestNewGitLabClient(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{GitLab: config.GitLabConfig{BaseURL: "https://gitlab.example.com", Token: "glpat-test"}}
	client, err := newGitLabClient(cfg, retry.New(retry.Config{MaxAttempts: 1}))
	if err != nil {
		t.Fatalf("newGitLabClient() unexpected error: %v", err)
	}
	if client == nil {
		t.Fatalf("newGitLabClient() returned nil client")
	}

	cfg.GitLab.Token = " "
	if _, err := newGitLabClient(cfg, retry.Policy{}); err == nil {
		t.Fatalf("newGitLabClient() expected error for empty token")
	}
}

func TestNewBackendsRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewBackends(context.Background(), nil, BackendOptions{}); err == nil {
		t.Fatalf("NewBackends(nil) expected error")
	}

	cfg := &config.Config{Sheets: config.SheetsConfig{SpreadsheetID: "sheet-1"}}
	if _, err := NewBackends(context.Background(), cfg, BackendOptions{}); err == nil {
		t.Fatalf("NewBackends() expected error without service account credentials")
	}
}
