package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a dotenv file into the process environment without overriding variables that
// are already set. A missing path is not an error when optional is true.
func LoadDotEnv(path string, optional bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on top of the YAML layer. Parse errors are collected
// so a single run reports every bad variable.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FILE", &cfg.Log.File)

	env.str("GITLAB_BASE_URL", &cfg.GitLab.BaseURL)
	env.str("GITLAB_TOKEN", &cfg.GitLab.Token)
	env.duration("GITLAB_REQUEST_TIMEOUT", &cfg.GitLab.RequestTimeout)
	if raw, ok := env.value("GITLAB_PROJECTS"); ok {
		projects, err := ParseProjects(raw)
		if err != nil {
			env.fail("GITLAB_PROJECTS: %v", err)
		} else {
			cfg.GitLab.Projects = projects
		}
	}

	env.str("SPREADSHEET_ID", &cfg.Sheets.SpreadsheetID)
	env.str("GOOGLE_SERVICE_ACCOUNT_JSON", &cfg.Sheets.CredentialsJSON)
	env.integer("SHEETS_WRITES_PER_MINUTE", &cfg.Sheets.WritesPerMinute)
	env.integer("SHEETS_WRITE_BURST", &cfg.Sheets.WriteBurst)
	env.str("INSERT_STRATEGY", &cfg.Sheets.InsertStrategy)
	env.str("TIMEZONE", &cfg.Sheets.Timezone)

	env.str("ISSUES_SHEET", &cfg.Jobs.IssuesSheet)
	env.str("ISSUES_STATE", &cfg.Jobs.IssuesState)
	env.str("MR_SHEET", &cfg.Jobs.MergeRequestsSheet)
	env.str("MR_STATE", &cfg.Jobs.MergeRequestsState)
	env.str("TEAM_CDS_SHEET", &cfg.Jobs.TeamCDS.Sheet)
	env.str("TEAM_CDS_DATA_RANGE", &cfg.Jobs.TeamCDS.DataRange)
	env.str("TEAM_CDS_MILESTONES_RANGE", &cfg.Jobs.TeamCDS.MilestonesRange)
	if raw, ok := env.value("TEAM_CDS_SOURCES"); ok {
		var sources []TeamCDSSource
		if err := json.Unmarshal([]byte(raw), &sources); err != nil {
			env.fail("TEAM_CDS_SOURCES: %v", err)
		} else {
			cfg.Jobs.TeamCDS.Sources = sources
		}
	}
	env.str("NUMBER_STEPS_SHEET", &cfg.Jobs.NumberSteps.Sheet)
	env.str("NUMBER_STEPS_COLUMN", &cfg.Jobs.NumberSteps.StepColumn)
	env.str("NUMBER_STEPS_CONTENT_COLUMN", &cfg.Jobs.NumberSteps.ContentColumn)
	env.integer("NUMBER_STEPS_FIRST_ROW", &cfg.Jobs.NumberSteps.FirstRow)
	env.str("TOC_SHEET", &cfg.Jobs.TableOfContents.Sheet)
	env.str("DROPDOWN_SOURCE_RANGE", &cfg.Jobs.Dropdowns.SourceRange)
	env.str("DROPDOWN_TARGET_RANGE", &cfg.Jobs.Dropdowns.TargetRange)
	env.str("MERGE_RUNS_SHEET", &cfg.Jobs.MergeRuns.Sheet)
	env.str("MERGE_RUNS_COLUMN", &cfg.Jobs.MergeRuns.Column)
	env.integer("MERGE_RUNS_FIRST_ROW", &cfg.Jobs.MergeRuns.FirstRow)

	env.integer("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	env.duration("RETRY_INITIAL_BACKOFF", &cfg.Retry.InitialBackoff)
	env.duration("RETRY_MAX_BACKOFF", &cfg.Retry.MaxBackoff)

	env.integer("ENRICH_CONCURRENCY", &cfg.Enrich.Concurrency)
	env.duration("ENRICH_TIMEOUT", &cfg.Enrich.Timeout)

	env.str("CACHE_BACKEND", &cfg.Cache.Backend)
	env.integer("CACHE_CAPACITY", &cfg.Cache.Capacity)
	env.duration("CACHE_TTL", &cfg.Cache.TTL)
	env.str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	env.str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	env.integer("REDIS_DB", &cfg.Cache.RedisDB)

	env.str("METRICS_LISTEN_ADDR", &cfg.Metrics.ListenAddr)
	env.str("PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	env.str("METRICS_JOB_NAME", &cfg.Metrics.JobName)

	env.boolean("OTEL_ENABLED", &cfg.Telemetry.OTELEnabled)
	env.str("OTEL_TRACE_MODE", &cfg.Telemetry.OTELTraceMode)

	if len(env.errs) > 0 {
		return errors.New(strings.Join(env.errs, "; "))
	}
	return nil
}

type envReader struct {
	lookup LookupFunc
	errs   []string
}

func (e *envReader) value(key string) (string, bool) {
	raw, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (e *envReader) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Sprintf(format, args...))
}

func (e *envReader) str(key string, target *string) {
	if raw, ok := e.value(key); ok {
		*target = raw
	}
}

func (e *envReader) integer(key string, target *int) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		e.fail("%s must be an integer", key)
		return
	}
	*target = parsed
}

func (e *envReader) boolean(key string, target *bool) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail("%s must be a boolean", key)
		return
	}
	*target = parsed
}

func (e *envReader) duration(key string, target *time.Duration) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		e.fail("%s: %v", key, err)
		return
	}
	*target = parsed
}
