package main

import (
	"errors"
	"fmt"
	"os"

	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit code: 2 for specification and
// usage errors caught before anything runs, 1 for everything that fails at
// runtime.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var parseErr *stratumerrors.ParseError
	var validationErr *stratumerrors.ValidationError
	var cycleErr *stratumerrors.CycleError
	var unknownErr *stratumerrors.UnknownPrerequisiteError
	var conflictErr *stratumerrors.ConflictError
	var versionErr *stratumerrors.SnapshotVersionError

	switch {
	case errors.As(err, &parseErr),
		errors.As(err, &validationErr),
		errors.As(err, &cycleErr),
		errors.As(err, &unknownErr),
		errors.As(err, &conflictErr),
		errors.As(err, &versionErr):
		return 2
	default:
		return 1
	}
}
