package model

// PredicateStatus describes how a step's postcondition relates to the
// current snapshot.
type PredicateStatus string

const (
	// StatusSatisfied means the postcondition holds.
	StatusSatisfied PredicateStatus = "satisfied"
	// StatusMissing means the resource the postcondition describes is absent.
	StatusMissing PredicateStatus = "missing"
	// StatusDrifted means the resource exists but no longer matches the
	// declared postcondition.
	StatusDrifted PredicateStatus = "drifted"
	// StatusUnknown means the predicate could not be decided.
	StatusUnknown PredicateStatus = "unknown"
)

// Evaluation is the result of testing a step's postcondition against a
// snapshot. Evaluation is strictly read-only, deterministic, and
// side-effect-free: it is the predicate of spec authoring, not an action.
type Evaluation struct {
	// StepID is the identifier of the evaluated step.
	StepID string

	// Status is the predicate outcome relative to the desired state.
	Status PredicateStatus

	// RequiresAction indicates whether Apply should run.
	RequiresAction bool

	// Message is a human-readable description of what was found.
	Message string

	// Diff optionally previews what applying would change.
	Diff string

	// Internal is opaque data handed from Evaluate to Apply so the action
	// does not recompute what the predicate already derived.
	Internal any
}
