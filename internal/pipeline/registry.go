package pipeline

// outcomeKind is the routing key derived from a StageResult. A completed guard
// verdict with a critical failure routes differently from an ordinary
// completion, so it gets its own kind.
type outcomeKind string

const (
	outcomeCompleted         outcomeKind = "completed"
	outcomeCompletedCritical outcomeKind = "completed_critical"
	outcomeFailed            outcomeKind = "failed"
	outcomeSkipped           outcomeKind = "skipped"
)

// routeKey addresses one row of the routing table.
type routeKey struct {
	current Stage
	outcome outcomeKind
}

// Route is the registry's answer for one stage transition.
type Route struct {
	// Next is the stage to advance to, or StageEnd when the run terminates.
	Next Stage

	// Terminal is the terminal run state when Next == StageEnd.
	Terminal State
}

// routingTable is the fixed transition policy. A literal table rather than
// branching code: the critical-failure halt at guard cannot be bypassed by a
// change to any one agent.
var routingTable = map[routeKey]Route{
	// Vision failure is non-fatal; the guard proceeds without vision findings.
	{StageVisionScout, outcomeCompleted}: {Next: StageGuard},
	{StageVisionScout, outcomeSkipped}:   {Next: StageGuard},
	{StageVisionScout, outcomeFailed}:    {Next: StageGuard},

	// A critical verdict, or a guard fault, halts before remediation and proof.
	{StageGuard, outcomeCompleted}:         {Next: StageFixer},
	{StageGuard, outcomeCompletedCritical}: {Next: StageEnd, Terminal: StateFailed},
	{StageGuard, outcomeFailed}:            {Next: StageEnd, Terminal: StateFailed},

	{StageFixer, outcomeCompleted}: {Next: StageProofSealer},
	{StageFixer, outcomeSkipped}:   {Next: StageProofSealer},
	{StageFixer, outcomeFailed}:    {Next: StageProofSealer},

	{StageProofSealer, outcomeCompleted}: {Next: StageEnd, Terminal: StateCompleted},
	{StageProofSealer, outcomeFailed}:    {Next: StageEnd, Terminal: StateFailed},
}

// stageOrder is the fixed execution order of the pipeline.
var stageOrder = []Stage{StageVisionScout, StageGuard, StageFixer, StageProofSealer}

// Registry holds the fixed stage order and transition policy.
type Registry struct{}

// NewRegistry returns the pipeline stage registry.
func NewRegistry() Registry {
	return Registry{}
}

// Order returns the fixed stage sequence.
func (Registry) Order() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// First returns the entry stage of the pipeline.
func (Registry) First() Stage {
	return stageOrder[0]
}

// NextStage consults the routing table for the transition out of the current
// stage. The second return is false when no row covers the transition; the
// run treats that as a terminal failure.
func (Registry) NextStage(current Stage, result StageResult) (Route, bool) {
	route, ok := routingTable[routeKey{current, resultKind(result)}]
	return route, ok
}

// resultKind derives the routing key from a stage result. A completed result
// whose output reports a critical failure is its own kind.
func resultKind(result StageResult) outcomeKind {
	switch result.Status {
	case StatusCompleted:
		if c, ok := result.Output.(CriticalOutcome); ok && c.CriticalFailure() {
			return outcomeCompletedCritical
		}
		return outcomeCompleted
	case StatusSkipped:
		return outcomeSkipped
	default:
		return outcomeFailed
	}
}
