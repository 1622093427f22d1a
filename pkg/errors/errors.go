package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures specification validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CycleError reports a dependency cycle among steps. Cycle holds the full
// ordered path; the first node closes the loop when rendered.
type CycleError struct {
	Cycle []string
}

// NewCycleError constructs a CycleError for the given ordered cycle path.
func NewCycleError(cycle []string) error {
	return &CycleError{Cycle: append([]string(nil), cycle...)}
}

func (e *CycleError) Error() string {
	if e == nil || len(e.Cycle) == 0 {
		return "dependency cycle detected"
	}
	path := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(path, " -> "))
}

// UnknownPrerequisiteError reports a prerequisite that names no step in the
// specification.
type UnknownPrerequisiteError struct {
	StepID  string
	Missing string
}

// NewUnknownPrerequisiteError constructs an UnknownPrerequisiteError.
func NewUnknownPrerequisiteError(stepID, missing string) error {
	return &UnknownPrerequisiteError{StepID: stepID, Missing: missing}
}

func (e *UnknownPrerequisiteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("step %q depends on unknown step %q", e.StepID, e.Missing)
}

// TransientError marks a failure that is likely to succeed on retry, such as
// a timeout or a connection reset.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError constructs a TransientError.
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transient failure: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// NonTransientError marks a permanent failure, such as a checksum mismatch
// or permission denied. The executor never retries these.
type NonTransientError struct {
	Op  string
	Err error
}

// NewNonTransientError constructs a NonTransientError.
func NewNonTransientError(op string, err error) error {
	return &NonTransientError{Op: op, Err: err}
}

func (e *NonTransientError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("permanent failure during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("permanent failure: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *NonTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PostconditionError signals that a step's action reported success but its
// postcondition still does not hold. The action and the declared
// postcondition disagree, which is an authoring defect; it is always fatal
// and never retried.
type PostconditionError struct {
	StepID string
	Detail string
}

// NewPostconditionError constructs a PostconditionError.
func NewPostconditionError(stepID, detail string) error {
	return &PostconditionError{StepID: stepID, Detail: detail}
}

func (e *PostconditionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return fmt.Sprintf("postcondition not met for step %q after successful apply: %s", e.StepID, e.Detail)
	}
	return fmt.Sprintf("postcondition not met for step %q after successful apply", e.StepID)
}

// ConflictError reports two unordered steps writing the same resource key.
type ConflictError struct {
	Key     string
	StepIDs []string
}

// NewConflictError constructs a ConflictError.
func NewConflictError(key string, stepIDs []string) error {
	return &ConflictError{Key: key, StepIDs: append([]string(nil), stepIDs...)}
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("conflicting writes to resource %q by unordered steps %s", e.Key, strings.Join(e.StepIDs, ", "))
}

// ExecutionError represents a runtime failure while applying a step.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SnapshotVersionError reports a persisted snapshot whose schema version does
// not match the version this build understands.
type SnapshotVersionError struct {
	Path  string
	Found string
	Want  string
}

// NewSnapshotVersionError constructs a SnapshotVersionError.
func NewSnapshotVersionError(path, found, want string) error {
	return &SnapshotVersionError{Path: path, Found: found, Want: want}
}

func (e *SnapshotVersionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("snapshot %s uses schema version %q but this build reads %q; re-provision or migrate the snapshot", e.Path, e.Found, e.Want)
}
