package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/sitesentinel/internal/ledger"
	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/tenant"
)

// stubAgent completes every execution with a fixed result.
type stubAgent struct {
	stage  pipeline.Stage
	result pipeline.StageResult
}

func (a stubAgent) Stage() pipeline.Stage {
	return a.stage
}

func (a stubAgent) Execute(context.Context, pipeline.RunContext) pipeline.StageResult {
	return a.result
}

// criticalVerdict halts the run at the guard.
type criticalVerdict struct{}

func (criticalVerdict) CriticalFailure() bool { return true }

func completingAgents() []pipeline.Agent {
	var agents []pipeline.Agent
	for _, stage := range []pipeline.Stage{
		pipeline.StageVisionScout,
		pipeline.StageGuard,
		pipeline.StageFixer,
		pipeline.StageProofSealer,
	} {
		agents = append(agents, stubAgent{stage: stage, result: pipeline.Completed(string(stage) + "-output")})
	}
	return agents
}

func newTestOrchestrator(agents []pipeline.Agent) (*Orchestrator, *ledger.AuditLedger) {
	auditLedger := ledger.NewAuditLedger(ledger.NewInMemoryStore(), nil)
	orch := New(Config{
		Registry: pipeline.NewRegistry(),
		Agents:   agents,
		Ledger:   auditLedger,
	})
	return orch, auditLedger
}

func TestStart_SealsCompletedRun(t *testing.T) {
	orch, auditLedger := newTestOrchestrator(completingAgents())

	tc, err := tenant.New("org-acme")
	if err != nil {
		t.Fatalf("tenant.New() error = %v", err)
	}

	entry, err := orch.Start(context.Background(), tc, "site-42", []string{"https://cdn.example.com/photo.jpg"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if entry.OrgID != "org-acme" || entry.SiteID != "site-42" {
		t.Errorf("entry identity = %s/%s, want org-acme/site-42", entry.OrgID, entry.SiteID)
	}
	if entry.RunID == "" {
		t.Error("entry has empty RunID")
	}
	if !auditLedger.Verify(entry) {
		t.Error("sealed entry failed verification")
	}

	// The sealed entry is retrievable by the owning tenant.
	got, err := auditLedger.Get(context.Background(), "org-acme", entry.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Digest != entry.Digest {
		t.Errorf("Get() digest = %s, want %s", got.Digest, entry.Digest)
	}
}

func TestStart_SealsFailedRun(t *testing.T) {
	// A critical guard verdict halts the run, but the outcome is still sealed:
	// failed runs are part of the permanent record.
	agents := []pipeline.Agent{
		stubAgent{stage: pipeline.StageVisionScout, result: pipeline.Completed("findings")},
		stubAgent{stage: pipeline.StageGuard, result: pipeline.Completed(criticalVerdict{})},
		stubAgent{stage: pipeline.StageFixer, result: pipeline.Completed("unused")},
		stubAgent{stage: pipeline.StageProofSealer, result: pipeline.Completed("unused")},
	}
	orch, auditLedger := newTestOrchestrator(agents)

	tc, _ := tenant.New("org-acme")
	entry, err := orch.Start(context.Background(), tc, "site-42", nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err := auditLedger.Get(context.Background(), "org-acme", entry.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !auditLedger.Verify(got) {
		t.Error("sealed failed run did not verify")
	}
}

func TestStart_MissingTenant(t *testing.T) {
	orch, _ := newTestOrchestrator(completingAgents())

	_, err := orch.Start(context.Background(), tenant.Context{}, "site-42", nil)
	if !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("Start() error = %v, want %v", err, tenant.ErrMissingTenant)
	}
}

func TestStart_IndependentRunsPerTenant(t *testing.T) {
	orch, auditLedger := newTestOrchestrator(completingAgents())

	tcA, _ := tenant.New("org-acme")
	tcB, _ := tenant.New("org-rival")

	entryA, err := orch.Start(context.Background(), tcA, "site-42", nil)
	if err != nil {
		t.Fatalf("Start() for org-acme error = %v", err)
	}
	entryB, err := orch.Start(context.Background(), tcB, "site-42", nil)
	if err != nil {
		t.Fatalf("Start() for org-rival error = %v", err)
	}

	if entryA.RunID == entryB.RunID {
		t.Error("two runs share a RunID")
	}

	// Each tenant sees only its own entry.
	if _, err := auditLedger.Get(context.Background(), "org-acme", entryB.RunID); err != ledger.ErrNotFound {
		t.Errorf("cross-tenant Get() error = %v, want %v", err, ledger.ErrNotFound)
	}
	if _, err := auditLedger.Get(context.Background(), "org-rival", entryA.RunID); err != ledger.ErrNotFound {
		t.Errorf("cross-tenant Get() error = %v, want %v", err, ledger.ErrNotFound)
	}
}

func TestStart_ObserverReceivesEvents(t *testing.T) {
	var events []pipeline.StageEvent
	auditLedger := ledger.NewAuditLedger(ledger.NewInMemoryStore(), nil)
	orch := New(Config{
		Registry: pipeline.NewRegistry(),
		Agents:   completingAgents(),
		Ledger:   auditLedger,
		Observer: pipeline.ObserverFunc(func(event pipeline.StageEvent) {
			events = append(events, event)
		}),
	})

	tc, _ := tenant.New("org-acme")
	entry, err := orch.Start(context.Background(), tc, "site-42", nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("observer received %d events, want 4", len(events))
	}
	for _, event := range events {
		if event.RunID != entry.RunID {
			t.Errorf("event.RunID = %s, want %s", event.RunID, entry.RunID)
		}
		if event.OrgID != "org-acme" {
			t.Errorf("event.OrgID = %s, want org-acme", event.OrgID)
		}
	}
}

func TestStart_CancelledRunIsSealed(t *testing.T) {
	orch, auditLedger := newTestOrchestrator(completingAgents())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tc, _ := tenant.New("org-acme")
	entry, err := orch.Start(ctx, tc, "site-42", nil)
	if err != nil {
		t.Fatalf("Start() with cancelled context error = %v", err)
	}

	// The seal happens even though the caller's context is dead.
	got, err := auditLedger.Get(context.Background(), "org-acme", entry.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !auditLedger.Verify(got) {
		t.Error("sealed cancelled run did not verify")
	}
}
