package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Scope names the subcommand a configuration is validated for.
type Scope string

const (
	// ScopeIssues validates the issues sync job.
	ScopeIssues Scope = "issues"
	// ScopeMergeRequests validates the merge request sync job.
	ScopeMergeRequests Scope = "merge-requests"
	// ScopeTeamCDS validates the Team CDS roll-up job.
	ScopeTeamCDS Scope = "team-cds"
	// ScopeNumberSteps validates the step numbering job.
	ScopeNumberSteps Scope = "number-steps"
	// ScopeTableOfContents validates the table of contents job.
	ScopeTableOfContents Scope = "toc"
	// ScopeDropdowns validates the dropdown population job.
	ScopeDropdowns Scope = "dropdowns"
	// ScopeMergeRuns validates the cell merge job.
	ScopeMergeRuns Scope = "merge-runs"
)

const (
	// InsertStrategyAppend appends new rows with INSERT_ROWS semantics.
	InsertStrategyAppend = "append"
	// InsertStrategyInsert inserts blank rows first, then writes values into them.
	InsertStrategyInsert = "insert"
)

// Config is the root application configuration.
type Config struct {
	Log       LogConfig
	GitLab    GitLabConfig
	Sheets    SheetsConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Enrich    EnrichConfig
	Cache     CacheConfig
	Metrics   MetricsConfig
	Telemetry TelemetryConfig
}

// LogConfig configures process logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// GitLabConfig configures GitLab API interactions.
type GitLabConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	Projects       []Project
}

// Project is one configured GitLab project, in declared order.
type Project struct {
	ID   string
	Name string
}

// SheetsConfig configures Google Sheets access.
type SheetsConfig struct {
	SpreadsheetID     string
	CredentialsJSON   string
	WritesPerMinute   int
	WriteBurst        int
	MaxRangesPerBatch int
	InsertStrategy    string
	Timezone          string
}

// JobsConfig configures the per-subcommand targets.
type JobsConfig struct {
	IssuesSheet        string
	IssuesState        string
	MergeRequestsSheet string
	MergeRequestsState string
	TeamCDS            TeamCDSConfig
	NumberSteps        NumberStepsConfig
	TableOfContents    TableOfContentsConfig
	Dropdowns          DropdownsConfig
	MergeRuns          MergeRunsConfig
}

// TeamCDSConfig configures the Team CDS roll-up.
type TeamCDSConfig struct {
	Sheet           string
	DataRange       string
	MilestonesRange string
	Sources         []TeamCDSSource
}

// TeamCDSSource is one spreadsheet range rolled up into Team CDS.
type TeamCDSSource struct {
	SpreadsheetID   string `json:"spreadsheet_id" yaml:"spreadsheet_id"`
	Range           string `json:"range" yaml:"range"`
	MilestoneColumn string `json:"milestone_column" yaml:"milestone_column"`
}

// NumberStepsConfig configures step numbering.
type NumberStepsConfig struct {
	Sheet         string
	StepColumn    string
	ContentColumn string
	FirstRow      int
}

// TableOfContentsConfig configures the table of contents sheet.
type TableOfContentsConfig struct {
	Sheet string
}

// DropdownsConfig configures dropdown population.
type DropdownsConfig struct {
	SourceRange string
	TargetRange string
}

// MergeRunsConfig configures vertical cell merging.
type MergeRunsConfig struct {
	Sheet    string
	Column   string
	FirstRow int
}

// RateLimitConfig configures GitLab rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	ThrottledBackoff      time.Duration
}

// RetryConfig configures retries around GitLab and Sheets calls.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// EnrichConfig configures per-record enrichment fan-out.
type EnrichConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// CacheConfig configures the enrichment cache.
type CacheConfig struct {
	Backend       string
	Capacity      int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// MetricsConfig configures run metrics.
type MetricsConfig struct {
	ListenAddr     string
	PushgatewayURL string
	JobName        string
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the optional YAML tuning file, overlays environment variables and applies defaults.
// A nil reader skips the YAML layer. Validation is left to Validate so each subcommand checks
// only what it needs.
func Load(reader io.Reader, lookup LookupFunc) (*Config, error) {
	var raw rawConfig
	if reader != nil {
		decoder := yaml.NewDecoder(reader)
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	cfg := raw.toConfig()
	if lookup != nil {
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate validates the values the given subcommand depends on.
func (c *Config) Validate(scope Scope) error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, "LOG_LEVEL must be one of debug|info|warn|error")
	}
	if c.Sheets.SpreadsheetID == "" {
		errs = append(errs, "SPREADSHEET_ID is required")
	}
	if c.Sheets.CredentialsJSON == "" {
		errs = append(errs, "GOOGLE_SERVICE_ACCOUNT_JSON is required")
	} else if !json.Valid([]byte(c.Sheets.CredentialsJSON)) {
		errs = append(errs, "GOOGLE_SERVICE_ACCOUNT_JSON must be valid JSON")
	}
	if c.Sheets.WritesPerMinute <= 0 {
		errs = append(errs, "SHEETS_WRITES_PER_MINUTE must be > 0")
	}
	if c.Sheets.MaxRangesPerBatch <= 0 {
		errs = append(errs, "sheets.max_ranges_per_batch must be > 0")
	}
	if _, err := time.LoadLocation(c.Sheets.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE %q is not a known location", c.Sheets.Timezone))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be > 0")
	}

	switch scope {
	case ScopeIssues, ScopeMergeRequests:
		if c.GitLab.Token == "" {
			errs = append(errs, "GITLAB_TOKEN is required")
		}
		if len(c.GitLab.Projects) == 0 {
			errs = append(errs, "GITLAB_PROJECTS must contain at least one project")
		}
		if c.Sheets.InsertStrategy != InsertStrategyAppend && c.Sheets.InsertStrategy != InsertStrategyInsert {
			errs = append(errs, "INSERT_STRATEGY must be append or insert")
		}
		if c.Enrich.Concurrency <= 0 {
			errs = append(errs, "ENRICH_CONCURRENCY must be > 0")
		}
		if c.Enrich.Timeout <= 0 {
			errs = append(errs, "ENRICH_TIMEOUT must be > 0")
		}
		if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
			errs = append(errs, "CACHE_BACKEND must be memory or redis")
		}
		if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	case ScopeTeamCDS:
		if c.Jobs.TeamCDS.MilestonesRange == "" {
			errs = append(errs, "TEAM_CDS_MILESTONES_RANGE is required")
		}
		if len(c.Jobs.TeamCDS.Sources) == 0 {
			errs = append(errs, "TEAM_CDS_SOURCES must contain at least one source")
		}
		for i, source := range c.Jobs.TeamCDS.Sources {
			prefix := fmt.Sprintf("TEAM_CDS_SOURCES[%d]", i)
			if source.SpreadsheetID == "" {
				errs = append(errs, prefix+".spreadsheet_id is required")
			}
			if source.Range == "" {
				errs = append(errs, prefix+".range is required")
			}
			if source.MilestoneColumn == "" {
				errs = append(errs, prefix+".milestone_column is required")
			}
		}
	case ScopeNumberSteps:
		if c.Jobs.NumberSteps.Sheet == "" {
			errs = append(errs, "NUMBER_STEPS_SHEET is required")
		}
		if c.Jobs.NumberSteps.FirstRow <= 0 {
			errs = append(errs, "NUMBER_STEPS_FIRST_ROW must be > 0")
		}
	case ScopeDropdowns:
		if c.Jobs.Dropdowns.SourceRange == "" {
			errs = append(errs, "DROPDOWN_SOURCE_RANGE is required")
		}
		if c.Jobs.Dropdowns.TargetRange == "" {
			errs = append(errs, "DROPDOWN_TARGET_RANGE is required")
		}
	case ScopeMergeRuns:
		if c.Jobs.MergeRuns.Sheet == "" {
			errs = append(errs, "MERGE_RUNS_SHEET is required")
		}
		if c.Jobs.MergeRuns.FirstRow <= 0 {
			errs = append(errs, "MERGE_RUNS_FIRST_ROW must be > 0")
		}
	case ScopeTableOfContents:
	default:
		errs = append(errs, fmt.Sprintf("unknown scope %q", scope))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ParseProjects decodes a GITLAB_PROJECTS object, keeping the declared key order.
func ParseProjects(raw string) ([]Project, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode projects: expected a JSON object")
	}

	projects := make([]Project, 0)
	seen := make(map[string]struct{})
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
		id, _ := keyToken.(string)

		var meta struct {
			Name string `json:"name"`
		}
		if err := decoder.Decode(&meta); err != nil {
			return nil, fmt.Errorf("decode project %q: %w", id, err)
		}
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("decode projects: empty project id")
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("decode projects: duplicate project id %q", id)
		}
		seen[id] = struct{}{}

		name := strings.TrimSpace(meta.Name)
		if name == "" {
			name = id
		}
		projects = append(projects, Project{ID: id, Name: name})
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return projects, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.GitLab.BaseURL == "" {
		cfg.GitLab.BaseURL = "https://gitlab.com"
	}
	if cfg.GitLab.RequestTimeout <= 0 {
		cfg.GitLab.RequestTimeout = 30 * time.Second
	}
	if cfg.Sheets.WritesPerMinute == 0 {
		cfg.Sheets.WritesPerMinute = 60
	}
	if cfg.Sheets.WriteBurst <= 0 {
		cfg.Sheets.WriteBurst = 5
	}
	if cfg.Sheets.MaxRangesPerBatch == 0 {
		cfg.Sheets.MaxRangesPerBatch = 500
	}
	if cfg.Sheets.InsertStrategy == "" {
		cfg.Sheets.InsertStrategy = InsertStrategyAppend
	}
	if cfg.Sheets.Timezone == "" {
		cfg.Sheets.Timezone = "UTC"
	}
	if cfg.Jobs.IssuesSheet == "" {
		cfg.Jobs.IssuesSheet = "Issues"
	}
	if cfg.Jobs.IssuesState == "" {
		cfg.Jobs.IssuesState = "all"
	}
	if cfg.Jobs.MergeRequestsSheet == "" {
		cfg.Jobs.MergeRequestsSheet = "Merge Requests"
	}
	if cfg.Jobs.MergeRequestsState == "" {
		cfg.Jobs.MergeRequestsState = "all"
	}
	if cfg.Jobs.TeamCDS.Sheet == "" {
		cfg.Jobs.TeamCDS.Sheet = "Team CDS"
	}
	if cfg.Jobs.TeamCDS.DataRange == "" {
		cfg.Jobs.TeamCDS.DataRange = "A2:Z"
	}
	if cfg.Jobs.NumberSteps.StepColumn == "" {
		cfg.Jobs.NumberSteps.StepColumn = "A"
	}
	if cfg.Jobs.NumberSteps.ContentColumn == "" {
		cfg.Jobs.NumberSteps.ContentColumn = "B"
	}
	if cfg.Jobs.NumberSteps.FirstRow == 0 {
		cfg.Jobs.NumberSteps.FirstRow = 2
	}
	if cfg.Jobs.TableOfContents.Sheet == "" {
		cfg.Jobs.TableOfContents.Sheet = "Table of Contents"
	}
	if cfg.Jobs.MergeRuns.Column == "" {
		cfg.Jobs.MergeRuns.Column = "A"
	}
	if cfg.Jobs.MergeRuns.FirstRow == 0 {
		cfg.Jobs.MergeRuns.FirstRow = 2
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 50
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = time.Second
	}
	if cfg.RateLimit.ThrottledBackoff == 0 {
		cfg.RateLimit.ThrottledBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 32 * time.Second
	}
	if cfg.Enrich.Concurrency == 0 {
		cfg.Enrich.Concurrency = 5
	}
	if cfg.Enrich.Timeout == 0 {
		cfg.Enrich.Timeout = 10 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = 1000
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "gitlab-sheets"
	}
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = "gitlab-sheets"
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}
