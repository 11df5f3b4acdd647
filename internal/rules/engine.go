package rules

import "strings"

// Input is the accumulated evidence the engine evaluates: the vision summary
// plus the detected violation and milestone lists.
type Input struct {
	Summary    string
	Violations []string
	Milestones []string
}

// Verdict is the engine's judgment over one input.
type Verdict struct {
	// Status is pass, warning, or fail.
	Status string `json:"status" cbor:"1,keyasint"`

	// RiskLevel is low, medium, high, or critical.
	RiskLevel string `json:"risk_level" cbor:"2,keyasint"`

	// Critical is true when the verdict is severe enough to halt the
	// pipeline before remediation and proof.
	Critical bool `json:"critical" cbor:"3,keyasint"`

	// Violations are the matched rule violations, citation included.
	Violations []string `json:"violations,omitempty" cbor:"4,keyasint,omitempty"`

	// RequiredActions are the remediation steps for the matched rules.
	RequiredActions []string `json:"required_actions,omitempty" cbor:"5,keyasint,omitempty"`
}

// CriticalFailure reports whether this verdict terminally halts a run.
func (v Verdict) CriticalFailure() bool {
	return v.Status == StatusFail && v.Critical
}

// Engine evaluates inputs against the fixed rule set.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over the fixed rule set.
func NewEngine() *Engine {
	return &Engine{rules: Rules()}
}

// Evaluate matches the input against every rule and derives the verdict.
// Evaluation is pure: the same input always yields the same verdict.
func (e *Engine) Evaluate(in Input) Verdict {
	var violations []string
	var actions []string
	stopWork := 0

	summary := strings.ToLower(in.Summary)

	for _, rule := range e.rules {
		matched := false
		pattern := strings.ToLower(rule.Pattern)

		for _, v := range in.Violations {
			if strings.Contains(strings.ToLower(v), pattern) {
				matched = true
				violations = append(violations, rule.Law+": "+v+" ("+rule.Code+")")
			}
		}
		if !matched && rule.Law == "LL149" && strings.Contains(summary, pattern) && strings.Contains(summary, "unsafe") {
			// Facade findings only violate LL149 when flagged unsafe.
			matched = true
			violations = append(violations, rule.Law+": critical facade examination required ("+rule.Code+")")
		}
		if !matched && rule.Law == "LL152" {
			// Gas work surfaces through milestones, not violations.
			for _, m := range in.Milestones {
				if strings.Contains(strings.ToLower(m), pattern) {
					matched = true
					actions = append(actions, rule.Action)
					break
				}
			}
			continue
		}

		if matched {
			actions = append(actions, rule.Action)
			if rule.StopWork {
				stopWork++
			}
		}
	}

	risk := riskLevel(len(violations), stopWork)
	status := StatusPass
	critical := false
	switch {
	case len(violations) == 0:
		status = StatusPass
	case risk == RiskCritical || risk == RiskHigh:
		status = StatusFail
		critical = true
	default:
		status = StatusWarning
	}

	return Verdict{
		Status:          status,
		RiskLevel:       risk,
		Critical:        critical,
		Violations:      violations,
		RequiredActions: actions,
	}
}

// riskLevel derives the overall risk from violation and stop-work counts.
func riskLevel(violations, stopWork int) string {
	switch {
	case stopWork > 0:
		return RiskCritical
	case violations >= 3:
		return RiskHigh
	case violations >= 1:
		return RiskMedium
	default:
		return RiskLow
	}
}
