package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "gitlab_sheets"

// Recorder holds the counters of one run.
type Recorder struct {
	registry *prometheus.Registry

	projects    *prometheus.CounterVec
	records     *prometheus.CounterVec
	enrichments *prometheus.CounterVec
	rows        *prometheus.CounterVec
	duplicates  *prometheus.GaugeVec
	runs        *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// NewRecorder creates a recorder on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		projects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_fetched_total",
			Help:      "GitLab projects fetched, by command and endpoint status.",
		}, []string{"command", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Issues or merge requests fetched from GitLab.",
		}, []string{"command"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Per-record enrichments, by outcome.",
		}, []string{"command", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Sheet rows written, by operation.",
		}, []string{"sheet", "operation"}),
		duplicates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_keys",
			Help:      "Keys found on more than one sheet row during the last run.",
		}, []string{"sheet"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Command runs, by result.",
		}, []string{"command", "result"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}, []string{"command"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"command"}),
	}
	r.registry.MustRegister(r.projects, r.records, r.enrichments, r.rows, r.duplicates, r.runs, r.duration, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveProject counts one project fetch.
func (r *Recorder) ObserveProject(command, status string, records int) {
	r.projects.WithLabelValues(command, status).Inc()
	if records > 0 {
		r.records.WithLabelValues(command).Add(float64(records))
	}
}

// ObserveEnrichment counts one enrichment outcome.
func (r *Recorder) ObserveEnrichment(command, outcome string) {
	r.enrichments.WithLabelValues(command, outcome).Inc()
}

// ObserveRows records the writes of one reconciliation.
func (r *Recorder) ObserveRows(sheet string, updated, inserted, duplicates int) {
	r.rows.WithLabelValues(sheet, "update").Add(float64(updated))
	r.rows.WithLabelValues(sheet, "insert").Add(float64(inserted))
	r.duplicates.WithLabelValues(sheet).Set(float64(duplicates))
}

// ObserveRun records the end of a job run.
func (r *Recorder) ObserveRun(command string, started, finished time.Time, err error) {
	r.duration.WithLabelValues(command).Set(finished.Sub(started).Seconds())
	if err != nil {
		r.runs.WithLabelValues(command, "failure").Inc()
		return
	}
	r.runs.WithLabelValues(command, "success").Inc()
	r.lastSuccess.WithLabelValues(command).Set(float64(finished.Unix()))
}

// Handler renders the registry through the OpenMetrics encoder.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Push sends the registry to a Pushgateway, replacing the job's previous group.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
