package agent

import (
	"context"

	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/rules"
	"github.com/onnwee/sitesentinel/internal/vision"
)

// RuleCapability is the rule-engine boundary the guard depends on.
// Evaluation must be pure so guard execution stays idempotent.
type RuleCapability interface {
	Evaluate(in rules.Input) rules.Verdict
}

// Guard is the legal gatekeeper. It evaluates accumulated findings against
// the fixed compliance rule set; a critical verdict is the only outcome that
// halts the pipeline before remediation and proof.
type Guard struct {
	engine RuleCapability
}

// NewGuard creates the guard agent.
func NewGuard(engine RuleCapability) *Guard {
	return &Guard{engine: engine}
}

// Stage returns the stage this agent serves.
func (g *Guard) Stage() pipeline.Stage {
	return pipeline.StageGuard
}

// Execute evaluates the vision findings, if any, against the rule set. When
// the scout skipped or failed, the guard evaluates an empty input — a site
// with no usable evidence can still pass, it just cannot be proven unsafe.
func (g *Guard) Execute(_ context.Context, rc pipeline.RunContext) pipeline.StageResult {
	var in rules.Input
	if f, ok := rc.Findings[pipeline.StageVisionScout].(vision.Findings); ok {
		in = rules.Input{
			Summary:    f.Summary,
			Violations: f.Violations,
			Milestones: f.Milestones,
		}
	}
	return pipeline.Completed(g.engine.Evaluate(in))
}
