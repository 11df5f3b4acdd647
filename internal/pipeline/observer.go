package pipeline

// StageEvent is emitted once per stage transition for progress reporting.
type StageEvent struct {
	RunID  string `json:"run_id"`
	OrgID  string `json:"org_id"`
	SiteID string `json:"site_id"`
	Stage  Stage  `json:"stage"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Observer receives stage transition events. Implementations must return
// quickly; the pipeline never waits on an observer.
type Observer interface {
	StageTransition(event StageEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(StageEvent)

// StageTransition calls the wrapped function.
func (f ObserverFunc) StageTransition(event StageEvent) {
	f(event)
}

// NopObserver discards all events.
type NopObserver struct{}

// StageTransition does nothing.
func (NopObserver) StageTransition(StageEvent) {}
