package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// Phase identifies how far the current run has progressed.
type Phase string

const (
	// PhaseStarting covers configuration and backend setup.
	PhaseStarting Phase = "starting"
	// PhaseRunning covers the job itself.
	PhaseRunning Phase = "running"
	// PhaseSucceeded means the job finished without a fatal error.
	PhaseSucceeded Phase = "succeeded"
	// PhaseFailed means the job returned a fatal error.
	PhaseFailed Phase = "failed"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all required dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the run continues but an optional dependency is degraded.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy or the run failed.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	Command      string
	Phase        Phase
	NeedsGitLab  bool
	GitLabUsable bool
	SheetsUsable bool
	CacheHealthy bool
}

// Status represents evaluated run health.
type Status struct {
	Command    string          `json:"command"`
	Phase      Phase           `json:"phase"`
	Mode       Mode            `json:"mode"`
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates readiness from dependency state.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state. The cache never gates readiness.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	components := map[string]bool{
		"sheets": input.SheetsUsable,
		"cache":  input.CacheHealthy,
	}
	if input.NeedsGitLab {
		components["gitlab"] = input.GitLabUsable
	}

	ready := input.SheetsUsable && input.Phase != PhaseStarting && input.Phase != PhaseFailed
	if input.NeedsGitLab {
		ready = ready && input.GitLabUsable
	}

	mode := ModeHealthy
	if !ready {
		mode = ModeUnhealthy
	} else if !input.CacheHealthy {
		mode = ModeDegraded
	}

	return Status{
		Command:    input.Command,
		Phase:      input.Phase,
		Mode:       mode,
		Ready:      ready,
		Components: components,
	}
}

// Tracker is a Provider fed by the running command.
type Tracker struct {
	mu        sync.RWMutex
	input     Input
	evaluator *StatusEvaluator
}

// NewTracker starts tracking a command in the starting phase.
func NewTracker(command string, needsGitLab bool) *Tracker {
	return &Tracker{
		input: Input{
			Command:      command,
			Phase:        PhaseStarting,
			NeedsGitLab:  needsGitLab,
			CacheHealthy: true,
		},
		evaluator: NewStatusEvaluator(),
	}
}

// SetPhase records the run phase.
func (t *Tracker) SetPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.Phase = phase
}

// SetBackends records which backends were initialized.
func (t *Tracker) SetBackends(gitlabUsable, sheetsUsable, cacheHealthy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.GitLabUsable = gitlabUsable
	t.input.SheetsUsable = sheetsUsable
	t.input.CacheHealthy = cacheHealthy
}

// CurrentStatus implements Provider.
func (t *Tracker) CurrentStatus(_ context.Context) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evaluator.Evaluate(t.input)
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
