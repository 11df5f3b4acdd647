// Package agent provides the pipeline agents: vision scout, guard, fixer,
// and proof sealer. Agents are stateless between executions and idempotent
// over a given run context snapshot; the pipeline run applies their results.
package agent

import (
	"context"

	"github.com/onnwee/sitesentinel/internal/pipeline"
	"github.com/onnwee/sitesentinel/internal/vision"
)

// SkipReasonNoEvidence is recorded when a run has no evidence to analyze.
// This is the graceful-degradation path, not a failure: the guard still runs.
const SkipReasonNoEvidence = "no-evidence"

// Scout is the eyes of the pipeline. It sends site imagery to the vision
// capability and contributes structured findings.
type Scout struct {
	analyzer vision.Analyzer
}

// NewScout creates the vision scout agent.
func NewScout(analyzer vision.Analyzer) *Scout {
	return &Scout{analyzer: analyzer}
}

// Stage returns the stage this agent serves.
func (s *Scout) Stage() pipeline.Stage {
	return pipeline.StageVisionScout
}

// Execute analyzes the run's evidence. No evidence yields a skip; a
// capability error yields a failure, which the routing table treats as
// non-fatal.
func (s *Scout) Execute(ctx context.Context, rc pipeline.RunContext) pipeline.StageResult {
	if len(rc.EvidenceRefs) == 0 {
		return pipeline.Skipped(SkipReasonNoEvidence)
	}

	findings, err := s.analyzer.Analyze(ctx, rc.EvidenceRefs)
	if err != nil {
		return pipeline.Failed("vision analysis failed: " + err.Error())
	}
	return pipeline.Completed(*findings)
}
