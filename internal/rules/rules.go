// Package rules evaluates accumulated site findings against a fixed NYC
// compliance rule set: Local Law 149 (facade inspection), Local Law 152 (gas
// piping inspection), and Building Code Chapter 33 (construction site safety).
package rules

// Risk levels, ordered from least to most severe.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Verdict statuses.
const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
)

// Rule is one fixed compliance requirement. The rule set is data so the
// evaluation behavior is auditable without reading evaluation code.
type Rule struct {
	// Code is the NYC Administrative Code or Building Code citation.
	Code string

	// Law is the local law or code chapter the rule belongs to.
	Law string

	// Pattern is matched case-insensitively against detected violations
	// and findings text.
	Pattern string

	// Action is the remediation step required when the rule matches.
	Action string

	// StopWork marks violations severe enough to halt work immediately.
	StopWork bool
}

// ruleSet is the fixed rule table, taken from the LL149/LL152/Chapter 33
// requirements the guard enforces.
var ruleSet = []Rule{
	{
		Code:    "§28-302.2",
		Law:     "LL149",
		Pattern: "facade",
		Action:  "Schedule QEWI (Qualified Exterior Wall Inspector) examination within 30 days",
	},
	{
		Code:    "§28-318",
		Law:     "LL152",
		Pattern: "gas",
		Action:  "Verify licensed master plumber GPS-1 filing (§28-318)",
	},
	{
		Code:    "§28-318",
		Law:     "LL152",
		Pattern: "piping",
		Action:  "Verify licensed master plumber GPS-1 filing (§28-318)",
	},
	{
		Code:     "§3314",
		Law:      "BC Chapter 33",
		Pattern:  "§3314",
		Action:   "Fall protection violation - STOP WORK",
		StopWork: true,
	},
	{
		Code:     "§3314.9",
		Law:      "BC Chapter 33",
		Pattern:  "§3314.9",
		Action:   "Scaffold safety violation - STOP WORK",
		StopWork: true,
	},
	{
		Code:     "§3308",
		Law:      "BC Chapter 33",
		Pattern:  "§3308",
		Action:   "Fire safety violation - immediate remediation required",
		StopWork: true,
	},
}

// Rules returns a copy of the fixed rule set.
func Rules() []Rule {
	out := make([]Rule, len(ruleSet))
	copy(out, ruleSet)
	return out
}
