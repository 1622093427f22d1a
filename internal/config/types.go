package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Step action kinds understood by the engine.
const (
	KindInstallPackage = "install-package"
	KindInterpreterEnv = "create-interpreter-env"
	KindPathVariable   = "mutate-path-variable"
	KindFetchArtifact  = "fetch-artifact"
	KindSetPermission  = "set-permission"
)

// Kinds lists every supported action kind in declaration order.
var Kinds = []string{
	KindInstallPackage,
	KindInterpreterEnv,
	KindPathVariable,
	KindFetchArtifact,
	KindSetPermission,
}

// Spec represents a full provisioning specification document.
type Spec struct {
	Version     string   `yaml:"version" validate:"required,spec_version"`
	Name        string   `yaml:"name" validate:"required,min=1,max=100"`
	Description string   `yaml:"description,omitempty"`
	Settings    Settings `yaml:"settings,omitempty"`
	Steps       []Step   `yaml:"steps" validate:"required,min=1,dive"`
}

// Settings holds global execution parameters. CLI flags take precedence over
// values declared here.
type Settings struct {
	Parallel int            `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=32"`
	Retries  int            `yaml:"retries,omitempty" validate:"omitempty,min=0,max=10"`
	Timeout  int            `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=86400"`
	Timeouts map[string]int `yaml:"timeouts,omitempty" validate:"omitempty,dive,min=1,max=86400"`
	DryRun   bool           `yaml:"dry_run,omitempty"`
	Verbose  bool           `yaml:"verbose,omitempty"`
}

// Step describes a single idempotent provisioning action. Kind-specific
// parameters live in the raw document node and are decoded on demand via
// DecodeParams, which keeps parse -> serialize round trips lossless.
type Step struct {
	ID        string   `yaml:"id" validate:"required,step_id"`
	Name      string   `yaml:"name,omitempty"`
	Kind      string   `yaml:"kind" validate:"required"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Enabled   bool     `yaml:"enabled,omitempty"`

	raw *yaml.Node
}

// UnmarshalYAML decodes the shared step envelope and retains the original
// mapping node for kind-specific parameter decoding and serialization.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type envelope struct {
		ID        string   `yaml:"id"`
		Name      string   `yaml:"name"`
		Kind      string   `yaml:"kind"`
		DependsOn []string `yaml:"depends_on"`
		Enabled   *bool    `yaml:"enabled"`
	}

	var base envelope
	if err := value.Decode(&base); err != nil {
		return err
	}

	s.ID = base.ID
	s.Name = base.Name
	s.Kind = base.Kind
	s.DependsOn = append([]string(nil), base.DependsOn...)
	if base.Enabled != nil {
		s.Enabled = *base.Enabled
	} else {
		s.Enabled = true
	}
	s.raw = value

	return nil
}

// MarshalYAML re-emits the original document node when present so parsed
// specifications serialize without loss.
func (s Step) MarshalYAML() (any, error) {
	if s.raw != nil {
		return s.raw, nil
	}

	node := &yaml.Node{Kind: yaml.MappingNode}
	appendScalar := func(key, value string) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value},
		)
	}
	appendScalar("id", s.ID)
	if s.Name != "" {
		appendScalar("name", s.Name)
	}
	appendScalar("kind", s.Kind)
	if len(s.DependsOn) > 0 {
		var deps yaml.Node
		if err := deps.Encode(s.DependsOn); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "depends_on"},
			&deps,
		)
	}
	if !s.Enabled {
		appendScalar("enabled", "false")
	}
	return node, nil
}

// DecodeParams decodes the step's kind-specific parameters into out.
func (s *Step) DecodeParams(out any) error {
	if s.raw == nil {
		return fmt.Errorf("step %q has no parameters", s.ID)
	}
	return s.raw.Decode(out)
}

// SetParams attaches kind-specific parameters to a programmatically built
// step by merging them into the step's document node.
func (s *Step) SetParams(params any) error {
	base, err := s.MarshalYAML()
	if err != nil {
		return err
	}
	node, ok := base.(*yaml.Node)
	if !ok || node.Kind != yaml.MappingNode {
		return fmt.Errorf("step %q: cannot rebuild document node", s.ID)
	}

	var extra yaml.Node
	if err := extra.Encode(params); err != nil {
		return err
	}
	if extra.Kind != yaml.MappingNode {
		return fmt.Errorf("step %q: parameters must encode to a mapping", s.ID)
	}

	node.Content = append(node.Content, extra.Content...)
	s.raw = node
	return nil
}

// Params decodes and returns the typed parameter struct for the step's kind.
func (s *Step) Params() (any, error) {
	switch s.Kind {
	case KindInstallPackage:
		out := &PackageParams{}
		return out, s.DecodeParams(out)
	case KindInterpreterEnv:
		out := &InterpreterEnvParams{}
		return out, s.DecodeParams(out)
	case KindPathVariable:
		out := &PathVariableParams{}
		return out, s.DecodeParams(out)
	case KindFetchArtifact:
		out := &ArtifactParams{}
		return out, s.DecodeParams(out)
	case KindSetPermission:
		out := &PermissionParams{}
		return out, s.DecodeParams(out)
	default:
		return nil, fmt.Errorf("step %q has unsupported kind %q", s.ID, s.Kind)
	}
}

// PackageParams installs one or more packages through a package manager.
// Entries may pin a version with the name@version form.
type PackageParams struct {
	Packages []string `yaml:"packages" validate:"required,min=1,dive,min=1,max=120"`
	Manager  string   `yaml:"manager,omitempty" validate:"omitempty,oneof=apt conda pip"`
	Channel  string   `yaml:"channel,omitempty"`
}

// InterpreterEnvParams ensures a named interpreter environment exists with
// the requested Python version.
type InterpreterEnvParams struct {
	EnvName       string `yaml:"env_name" validate:"required,min=1,max=64"`
	PythonVersion string `yaml:"python_version" validate:"required"`
	Manager       string `yaml:"manager,omitempty" validate:"omitempty,oneof=conda venv"`
}

// PathVariableParams appends a segment to a PATH-style environment variable.
// Composition is append-only: earlier segments are never clobbered.
type PathVariableParams struct {
	Variable string `yaml:"variable" validate:"required,min=1"`
	Segment  string `yaml:"segment" validate:"required,min=1"`
	After    string `yaml:"after,omitempty"`
}

// ArtifactParams fetches a remote artifact to a local destination. HTTP(S)
// sources may declare a sha256 checksum; git sources may pin a ref.
type ArtifactParams struct {
	Source      string `yaml:"source" validate:"required,min=1"`
	Destination string `yaml:"destination" validate:"required,min=1"`
	Checksum    string `yaml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`
	Ref         string `yaml:"ref,omitempty"`
	Depth       int    `yaml:"depth,omitempty" validate:"omitempty,min=0"`
}

// PermissionParams sets the file mode on a path.
type PermissionParams struct {
	Path      string `yaml:"path" validate:"required,min=1"`
	Mode      string `yaml:"mode" validate:"required,file_mode"`
	Recursive bool   `yaml:"recursive,omitempty"`
}

// StepMap builds a lookup table for steps by ID.
func StepMap(steps []Step) map[string]*Step {
	out := make(map[string]*Step, len(steps))
	for i := range steps {
		out[steps[i].ID] = &steps[i]
	}
	return out
}
