package model

import (
	"time"
)

const (
	// StatusApplied marks a step whose action ran and whose postcondition
	// now holds.
	StatusApplied = "applied"
	// StatusSkipped marks a step whose postcondition already held; the
	// snapshot was not touched.
	StatusSkipped = "skipped"
	// StatusWouldApply marks a step a dry run would have applied.
	StatusWouldApply = "would-apply"
	// StatusFailed marks a failure during step application.
	StatusFailed = "failed"
)

// StepResult captures the outcome of applying a single step. Results are
// immutable once recorded and appended to the run log owned by the executor.
type StepResult struct {
	StepID    string
	Status    string
	Message   string
	Error     error
	Changes   map[string]string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}
