package rules

import "time"

// Rule pairs one condition with an ordered list of actions.
// Rules are values: replacing a rule means storing a new Rule under the same ID.
type Rule struct {
	ID          string
	Name        string
	Description string // optional
	Priority    uint32 // higher runs first
	Condition   Condition
	Actions     []Action
	Enabled     bool
}

// RunResult describes one Engine run.
type RunResult struct {
	Outputs  Map
	Fired    []string // IDs of rules whose condition held, in run order
	Skipped  int      // disabled rules
	Duration time.Duration
}

// RuleContext is the per-run state shared by the actions of one Execute call.
// It is owned by a single run and never shared between goroutines.
type RuleContext struct {
	Facts         Map
	Outputs       Map
	Collaborators Collaborators
}

// NewRuleContext snapshots facts and resolves the collaborators for one run.
func NewRuleContext(facts map[string]Value, collaborators Collaborators) *RuleContext {
	return &RuleContext{
		Facts:         CloneMap(Map(facts)),
		Outputs:       make(Map),
		Collaborators: collaborators.withDefaults(),
	}
}
