package model

import (
	"time"
)

// VerificationResult records whether a single step's postcondition holds
// against a snapshot, with detail distinguishing drift from work that was
// never attempted.
type VerificationResult struct {
	StepID    string
	Kind      string
	Status    PredicateStatus
	Holds     bool
	Detail    string
	Duration  time.Duration
	Timestamp time.Time
}

// VerificationReport aggregates the verification of every step in a
// specification. Reports are produced fresh on each run and are never
// persisted as authoritative state; the snapshot remains the authority.
type VerificationReport struct {
	RunID     string
	Results   []VerificationResult
	Satisfied int
	Missing   int
	Drifted   int
	Unknown   int
	Duration  time.Duration
}

// Ok reports whether every verified postcondition holds.
func (r *VerificationReport) Ok() bool {
	if r == nil {
		return false
	}
	for _, res := range r.Results {
		if !res.Holds {
			return false
		}
	}
	return true
}

// Count records res into the report's counters.
func (r *VerificationReport) Count(res VerificationResult) {
	switch res.Status {
	case StatusSatisfied:
		r.Satisfied++
	case StatusMissing:
		r.Missing++
	case StatusDrifted:
		r.Drifted++
	default:
		r.Unknown++
	}
}
