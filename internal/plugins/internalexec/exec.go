// Package internalexec runs the external tools (package managers,
// interpreter tooling) that stateful plugins shell out to.
package internalexec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its combined output.
// Plugins accept a Runner so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type systemRunner struct{}

// System returns a Runner backed by os/exec.
func System() Runner {
	return systemRunner{}
}

// Run executes the command with the parent's environment, collecting stdout
// and stderr for later inspection.
func (systemRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}
