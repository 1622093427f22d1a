package plugin

import (
	"context"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
)

// Metadata describes a registered action plugin.
type Metadata struct {
	// Kind is the step kind the plugin handles, unique within a registry.
	Kind string
	// Version is the plugin's own version, independent of the spec schema.
	Version string
	// Description is a short human-readable summary.
	Description string
	// Stateful reports whether Apply touches state outside the snapshot
	// (filesystem, network, subprocesses).
	Stateful bool
}

// Plugin is the contract every action kind implements.
//
// Evaluate is the step's postcondition predicate: a strictly read-only,
// deterministic function of the snapshot. Apply performs the action and
// reports the resource values it produced; the executor owns merging those
// into the snapshot and re-checking the postcondition.
type Plugin interface {
	// Metadata returns the plugin's identity.
	Metadata() Metadata

	// Schema returns the zero value of the plugin's parameter struct, used
	// for documentation and validation tooling.
	Schema() any

	// ResourceKeys returns the snapshot keys the step would write. The
	// executor uses these to reject same-key writes by unordered steps
	// before anything runs.
	ResourceKeys(step *config.Step) ([]string, error)

	// Evaluate tests the step's postcondition against the snapshot. It MUST
	// NOT mutate the snapshot or any external state.
	Evaluate(ctx context.Context, step *config.Step, snap *snapshot.Snapshot) (*model.Evaluation, error)

	// Apply performs the action and returns a StepResult whose Changes map
	// holds the resource values to merge into the snapshot. Apply must be
	// idempotent. Transient failures are reported as
	// errors.TransientError so the executor can retry them.
	Apply(ctx context.Context, eval *model.Evaluation, step *config.Step) (*model.StepResult, error)
}
