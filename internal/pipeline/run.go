package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is a terminal or initial run state. While a stage executes, the run's
// state is the stage name itself.
type State string

// Run states.
const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// CancelReason is recorded in history when the caller cancels a run before it
// reaches a terminal state. A cancelled run is still sealed so that every
// started run is accounted for.
const CancelReason = "cancelled"

// HistoryEntry is one append-only log record of a stage execution.
// Seq is a logical timestamp: the position of the entry within the run.
type HistoryEntry struct {
	Stage  Stage  `json:"stage" cbor:"1,keyasint"`
	Status Status `json:"status" cbor:"2,keyasint"`
	Reason string `json:"reason,omitempty" cbor:"3,keyasint,omitempty"`
	Seq    int    `json:"seq" cbor:"4,keyasint"`
}

// RunContext is the mutable scratch state threaded through all stages of one
// pipeline execution. It is owned exclusively by the Run that created it;
// agents receive read-only snapshots.
type RunContext struct {
	RunID        string
	OrgID        string
	SiteID       string
	EvidenceRefs []string

	// Findings accumulates each stage's typed output. Entries are never
	// removed or overwritten by later stages.
	Findings map[Stage]any

	CurrentStage Stage
	History      []HistoryEntry
}

// NewRunContext creates the scratch state for one run.
func NewRunContext(runID, orgID, siteID string, evidenceRefs []string) *RunContext {
	refs := make([]string, len(evidenceRefs))
	copy(refs, evidenceRefs)
	return &RunContext{
		RunID:        runID,
		OrgID:        orgID,
		SiteID:       siteID,
		EvidenceRefs: refs,
		Findings:     make(map[Stage]any),
	}
}

// record appends a history entry for the given stage result.
func (rc *RunContext) record(stage Stage, result StageResult) {
	rc.History = append(rc.History, HistoryEntry{
		Stage:  stage,
		Status: result.Status,
		Reason: result.Reason,
		Seq:    len(rc.History),
	})
	if result.Status == StatusCompleted && result.Output != nil {
		rc.Findings[stage] = result.Output
	}
}

// Run is one state machine instance. It drives the agents in registry order,
// applies their results to the run context, and always reaches a terminal
// state: agent faults are converted into Failed results at this boundary.
//
// A Run executes its stages synchronously; concurrency exists only across
// runs, which share no mutable state.
type Run struct {
	registry Registry
	agents   map[Stage]Agent
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger

	rc    *RunContext
	state State
}

// NewRun creates a pending run over the given context. Observer, metrics, and
// logger may be nil.
func NewRun(rc *RunContext, registry Registry, agents map[Stage]Agent, observer Observer, metrics *Metrics, logger *slog.Logger) *Run {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Run{
		registry: registry,
		agents:   agents,
		observer: observer,
		metrics:  metrics,
		logger:   logger,
		rc:       rc,
		state:    StatePending,
	}
}

// State returns the current run state.
func (r *Run) State() State {
	return r.state
}

// Context returns the run's context. Callers must treat it as read-only once
// the run has started.
func (r *Run) Context() *RunContext {
	return r.rc
}

// Start drives the run to a terminal state and returns it. Start never
// returns an error: business outcomes and transient faults alike are folded
// into the history so the run is always sealable.
func (r *Run) Start(ctx context.Context) State {
	current := r.registry.First()

	for current != StageEnd {
		if err := ctx.Err(); err != nil {
			result := Failed(CancelReason)
			r.rc.CurrentStage = current
			r.rc.record(current, result)
			r.notify(current, result)
			r.state = StateFailed
			r.logger.Info("run cancelled",
				"run_id", r.rc.RunID,
				"org_id", r.rc.OrgID,
				"stage", string(current))
			return r.state
		}

		r.rc.CurrentStage = current
		r.state = State(current)

		result := r.invoke(ctx, current)
		r.rc.record(current, result)
		r.notify(current, result)
		if r.metrics != nil {
			r.metrics.IncStageResult(string(current), string(result.Status))
		}

		route, ok := r.registry.NextStage(current, result)
		if !ok {
			// No routing row covers this transition. Treat as a terminal
			// failure rather than guessing a next stage.
			r.logger.Error("no route for stage transition",
				"run_id", r.rc.RunID,
				"stage", string(current),
				"status", string(result.Status))
			r.state = StateFailed
			return r.state
		}

		if route.Next == StageEnd {
			r.state = route.Terminal
			return r.state
		}
		current = route.Next
	}

	r.state = StateFailed
	return r.state
}

// invoke executes the agent for a stage, converting any panic or missing
// agent into a Failed result.
func (r *Run) invoke(ctx context.Context, stage Stage) (result StageResult) {
	agent, ok := r.agents[stage]
	if !ok {
		return Failed(fmt.Sprintf("no agent registered for stage %s", stage))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("agent panicked",
				"run_id", r.rc.RunID,
				"stage", string(stage),
				"panic", fmt.Sprint(p))
			result = Failed(fmt.Sprintf("agent fault: %v", p))
		}
	}()

	start := time.Now()
	result = agent.Execute(ctx, *r.rc)
	if r.metrics != nil {
		r.metrics.ObserveStageDuration(string(stage), time.Since(start).Seconds())
	}
	return result
}

// notify emits a stage transition event. Observer failures are contained here
// so progress reporting can never block or break the pipeline.
func (r *Run) notify(stage Stage, result StageResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("stage observer panicked",
				"run_id", r.rc.RunID,
				"stage", string(stage),
				"panic", fmt.Sprint(p))
		}
	}()

	r.observer.StageTransition(StageEvent{
		RunID:  r.rc.RunID,
		OrgID:  r.rc.OrgID,
		SiteID: r.rc.SiteID,
		Stage:  stage,
		Status: result.Status,
		Reason: result.Reason,
	})
}
