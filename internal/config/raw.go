package config

type rawConfig struct {
	Log       LogConfig    `yaml:"log"`
	GitLab    rawGitLab    `yaml:"gitlab"`
	Sheets    rawSheets    `yaml:"sheets"`
	Jobs      rawJobs      `yaml:"jobs"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Enrich    rawEnrich    `yaml:"enrich"`
	Cache     rawCache     `yaml:"cache"`
	Metrics   rawMetrics   `yaml:"metrics"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitLab struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawSheets struct {
	WritesPerMinute   int    `yaml:"writes_per_minute"`
	WriteBurst        int    `yaml:"write_burst"`
	MaxRangesPerBatch int    `yaml:"max_ranges_per_batch"`
	InsertStrategy    string `yaml:"insert_strategy"`
	Timezone          string `yaml:"timezone"`
}

type rawJobs struct {
	IssuesSheet        string         `yaml:"issues_sheet"`
	IssuesState        string         `yaml:"issues_state"`
	MergeRequestsSheet string         `yaml:"merge_requests_sheet"`
	MergeRequestsState string         `yaml:"merge_requests_state"`
	TeamCDS            rawTeamCDS     `yaml:"team_cds"`
	NumberSteps        rawNumberSteps `yaml:"number_steps"`
	TableOfContents    rawTOC         `yaml:"toc"`
	Dropdowns          rawDropdowns   `yaml:"dropdowns"`
	MergeRuns          rawMergeRuns   `yaml:"merge_runs"`
}

type rawTeamCDS struct {
	Sheet           string          `yaml:"sheet"`
	DataRange       string          `yaml:"data_range"`
	MilestonesRange string          `yaml:"milestones_range"`
	Sources         []TeamCDSSource `yaml:"sources"`
}

type rawNumberSteps struct {
	Sheet         string `yaml:"sheet"`
	StepColumn    string `yaml:"step_column"`
	ContentColumn string `yaml:"content_column"`
	FirstRow      int    `yaml:"first_row"`
}

type rawTOC struct {
	Sheet string `yaml:"sheet"`
}

type rawDropdowns struct {
	SourceRange string `yaml:"source_range"`
	TargetRange string `yaml:"target_range"`
}

type rawMergeRuns struct {
	Sheet    string `yaml:"sheet"`
	Column   string `yaml:"column"`
	FirstRow int    `yaml:"first_row"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	ThrottledBackoff      duration `yaml:"throttled_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawEnrich struct {
	Concurrency int      `yaml:"concurrency"`
	Timeout     duration `yaml:"timeout"`
}

type rawCache struct {
	Backend   string   `yaml:"backend"`
	Capacity  int      `yaml:"capacity"`
	TTL       duration `yaml:"ttl"`
	RedisAddr string   `yaml:"redis_addr"`
	RedisDB   int      `yaml:"redis_db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

type rawMetrics struct {
	ListenAddr     string `yaml:"listen_addr"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Log: r.Log,
		GitLab: GitLabConfig{
			BaseURL:        r.GitLab.BaseURL,
			RequestTimeout: r.GitLab.RequestTimeout.Duration,
		},
		Sheets: SheetsConfig{
			WritesPerMinute:   r.Sheets.WritesPerMinute,
			WriteBurst:        r.Sheets.WriteBurst,
			MaxRangesPerBatch: r.Sheets.MaxRangesPerBatch,
			InsertStrategy:    r.Sheets.InsertStrategy,
			Timezone:          r.Sheets.Timezone,
		},
		Jobs: JobsConfig{
			IssuesSheet:        r.Jobs.IssuesSheet,
			IssuesState:        r.Jobs.IssuesState,
			MergeRequestsSheet: r.Jobs.MergeRequestsSheet,
			MergeRequestsState: r.Jobs.MergeRequestsState,
			TeamCDS: TeamCDSConfig{
				Sheet:           r.Jobs.TeamCDS.Sheet,
				DataRange:       r.Jobs.TeamCDS.DataRange,
				MilestonesRange: r.Jobs.TeamCDS.MilestonesRange,
				Sources:         r.Jobs.TeamCDS.Sources,
			},
			NumberSteps: NumberStepsConfig{
				Sheet:         r.Jobs.NumberSteps.Sheet,
				StepColumn:    r.Jobs.NumberSteps.StepColumn,
				ContentColumn: r.Jobs.NumberSteps.ContentColumn,
				FirstRow:      r.Jobs.NumberSteps.FirstRow,
			},
			TableOfContents: TableOfContentsConfig{Sheet: r.Jobs.TableOfContents.Sheet},
			Dropdowns: DropdownsConfig{
				SourceRange: r.Jobs.Dropdowns.SourceRange,
				TargetRange: r.Jobs.Dropdowns.TargetRange,
			},
			MergeRuns: MergeRunsConfig{
				Sheet:    r.Jobs.MergeRuns.Sheet,
				Column:   r.Jobs.MergeRuns.Column,
				FirstRow: r.Jobs.MergeRuns.FirstRow,
			},
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			ThrottledBackoff:      r.RateLimit.ThrottledBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Enrich: EnrichConfig{
			Concurrency: r.Enrich.Concurrency,
			Timeout:     r.Enrich.Timeout.Duration,
		},
		Cache: CacheConfig{
			Backend:   r.Cache.Backend,
			Capacity:  r.Cache.Capacity,
			TTL:       r.Cache.TTL.Duration,
			RedisAddr: r.Cache.RedisAddr,
			RedisDB:   r.Cache.RedisDB,
			KeyPrefix: r.Cache.KeyPrefix,
		},
		Metrics: MetricsConfig{
			ListenAddr:     r.Metrics.ListenAddr,
			PushgatewayURL: r.Metrics.PushgatewayURL,
			JobName:        r.Metrics.JobName,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
