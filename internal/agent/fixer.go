package agent

import (
	"context"
	"fmt"

	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/rules"
)

// SkipReasonNothingToFix is recorded when the guard verdict is a clean pass.
const SkipReasonNothingToFix = "nothing-to-fix"

// RemediationPlan maps each violation to its remediation action.
type RemediationPlan struct {
	// Items keys violations to remediation actions.
	Items map[string]string `json:"items" cbor:"1,keyasint"`
}

// Fixer turns the guard's verdict into a remediation plan. It is only
// reachable when the guard did not fail critically.
type Fixer struct{}

// NewFixer creates the fixer agent.
func NewFixer() *Fixer {
	return &Fixer{}
}

// Stage returns the stage this agent serves.
func (f *Fixer) Stage() pipeline.Stage {
	return pipeline.StageFixer
}

// Execute builds the remediation plan from the guard verdict. A pass verdict
// skips; a missing verdict (guard never completed) is a failure, which still
// routes forward to the sealer so the attempt is recorded.
func (f *Fixer) Execute(_ context.Context, rc pipeline.RunContext) pipeline.StageResult {
	verdict, ok := rc.Findings[pipeline.StageGuard].(rules.Verdict)
	if !ok {
		return pipeline.Failed("guard verdict missing from findings")
	}
	if verdict.Status == rules.StatusPass {
		return pipeline.Skipped(SkipReasonNothingToFix)
	}

	items := make(map[string]string, len(verdict.Violations))
	for i, violation := range verdict.Violations {
		action := "Review violation with a licensed inspector"
		if i < len(verdict.RequiredActions) {
			action = verdict.RequiredActions[i]
		}
		items[violation] = action
	}
	// Actions without a matching violation (e.g. LL152 filing checks) are
	// preserved under numbered advisory keys so none overwrite each other.
	advisory := 0
	for i := len(verdict.Violations); i < len(verdict.RequiredActions); i++ {
		advisory++
		items[fmt.Sprintf("advisory-%d", advisory)] = verdict.RequiredActions[i]
	}

	return pipeline.Completed(RemediationPlan{Items: items})
}
