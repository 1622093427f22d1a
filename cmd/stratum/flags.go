package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
)

const defaultSnapshotPath = ".stratum/snapshot.json"

func validateSpecPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("spec file is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve spec path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("spec file does not exist: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("spec path %s is a directory", abs)
	}

	return nil
}

func loadSpec(path string) (*config.Spec, error) {
	spec, err := config.ParseSpec(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// loadSnapshot seeds a run from an archived snapshot, or starts fresh when
// none exists yet.
func loadSnapshot(path string) (*snapshot.Snapshot, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return snapshot.New(), nil
	}
	return snapshot.Load(path)
}
