// Package pipeline implements the compliance-analysis pipeline: a fixed chain
// of agent stages (vision scout, guard, fixer, proof sealer) sequenced by a
// table-driven state machine. The routing policy is data, not code, so the one
// safety-critical rule — a critical compliance failure halts the run before
// remediation and proof — stays independently testable.
package pipeline

import "context"

// Stage identifies one step in the fixed pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageVisionScout Stage = "vision_scout"
	StageGuard       Stage = "guard"
	StageFixer       Stage = "fixer"
	StageProofSealer Stage = "proof_sealer"

	// StageEnd is the sentinel returned by the registry when no stage follows.
	StageEnd Stage = "end"
)

// Status is the outcome kind of a single stage execution.
type Status string

// Stage result statuses.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult is the outcome of one agent execution. Exactly one variant is
// populated: Completed carries an output, Failed and Skipped carry a reason.
// Use the constructors; a zero StageResult is invalid.
type StageResult struct {
	Status Status
	Output any
	Reason string
}

// Completed returns a successful result carrying the stage's output.
func Completed(output any) StageResult {
	return StageResult{Status: StatusCompleted, Output: output}
}

// Failed returns a failed result with the failure reason.
func Failed(reason string) StageResult {
	return StageResult{Status: StatusFailed, Reason: reason}
}

// Skipped returns a skipped result with the skip reason.
// Skipping is a business outcome, not a failure.
func Skipped(reason string) StageResult {
	return StageResult{Status: StatusSkipped, Reason: reason}
}

// CriticalOutcome is implemented by stage outputs that can terminally halt the
// run. Only the guard's verdict implements it today.
type CriticalOutcome interface {
	CriticalFailure() bool
}

// Agent is one polymorphic unit of work in the pipeline. Implementations must
// be idempotent with respect to re-execution on the same RunContext snapshot
// and must not mutate shared state directly; the run applies the result.
type Agent interface {
	// Stage returns the stage this agent serves.
	Stage() Stage

	// Execute runs the agent against a read-only snapshot of the run context.
	// Faults (panics, returned via Failed) never propagate past the run.
	Execute(ctx context.Context, rc RunContext) StageResult
}
