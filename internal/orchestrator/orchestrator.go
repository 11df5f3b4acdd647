// Package orchestrator is the single entry point into the compliance
// pipeline: it creates a run for a tenant, drives it to a terminal state, and
// seals the outcome into the audit ledger. Failed and cancelled runs are
// sealed too, so "we looked but could not complete" is part of the permanent
// record.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

// tracerName identifies pipeline spans.
const tracerName = "github.com/onnwee/sitesentinel/internal/orchestrator"

// Orchestrator wires the stage registry, agents, observer, and ledger into
// one facade. Safe for concurrent use: runs share no mutable state beyond the
// ledger store.
type Orchestrator struct {
	registry pipeline.Registry
	agents   map[pipeline.Stage]pipeline.Agent
	ledger   *ledger.AuditLedger
	observer pipeline.Observer
	metrics  *pipeline.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Config holds the orchestrator's collaborators. Observer, Metrics, and
// Logger may be nil.
type Config struct {
	Registry pipeline.Registry
	Agents   []pipeline.Agent
	Ledger   *ledger.AuditLedger
	Observer pipeline.Observer
	Metrics  *pipeline.Metrics
	Logger   *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Observer == nil {
		cfg.Observer = pipeline.NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	agents := make(map[pipeline.Stage]pipeline.Agent, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.Stage()] = a
	}

	return &Orchestrator{
		registry: cfg.Registry,
		agents:   agents,
		ledger:   cfg.Ledger,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Start executes one pipeline run for the tenant and returns the sealed
// ledger entry. Agent faults never surface as errors; the returned error is
// reserved for the fatal taxonomy — missing tenant, or a ledger write that
// cannot be completed atomically.
func (o *Orchestrator) Start(ctx context.Context, tc tenant.Context, siteID string, evidenceRefs []string) (*ledger.Entry, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	rc := pipeline.NewRunContext(runID, tc.OrgID, siteID, evidenceRefs)

	ctx, span := o.tracer.Start(ctx, "compliance.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("org.id", tc.OrgID),
			attribute.String("site.id", siteID),
			attribute.Int("evidence.count", len(evidenceRefs)),
		))
	defer span.End()

	run := pipeline.NewRun(rc, o.registry, o.agents, o.traceObserver(span), o.metrics, o.logger)

	o.logger.Info("starting run",
		"run_id", runID,
		"org_id", tc.OrgID,
		"site_id", siteID,
		"evidence_count", len(evidenceRefs))

	terminal := run.Start(ctx)
	span.SetAttributes(attribute.String("run.terminal_state", string(terminal)))
	if o.metrics != nil {
		o.metrics.IncRunsTotal(string(terminal))
	}

	entry, err := o.ledger.Seal(context.WithoutCancel(ctx), rc)
	if err != nil {
		o.logger.Error("run could not be sealed",
			"run_id", runID,
			"org_id", tc.OrgID,
			"error", err)
		return nil, err
	}

	o.logger.Info("run finished",
		"run_id", runID,
		"org_id", tc.OrgID,
		"terminal_state", string(terminal),
		"entry_id", entry.EntryID)
	return entry, nil
}

// traceObserver fans each stage event out to the configured observer and the
// run's trace span.
func (o *Orchestrator) traceObserver(span trace.Span) pipeline.Observer {
	return pipeline.ObserverFunc(func(event pipeline.StageEvent) {
		span.AddEvent("stage."+string(event.Stage),
			trace.WithAttributes(
				attribute.String("stage.status", string(event.Status)),
				attribute.String("stage.reason", event.Reason),
			))
		o.observer.StageTransition(event)
	})
}
