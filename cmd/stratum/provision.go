package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/stratum/internal/engine"
	"github.com/alexisbeaulieu97/stratum/internal/logger"
)

type provisionOptions struct {
	SpecPath     string
	SnapshotPath string
	Retries      int
	Parallel     int
	DryRun       bool
	Verbose      bool
	Plain        bool
}

var provisionCmdRunner = runProvision

func newProvisionCmd(root *rootFlags) *cobra.Command {
	opts := provisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision <spec-file>",
		Short: "Apply a provisioning spec, skipping steps whose postconditions already hold",
		Long: `Provision parses and validates the spec, orders its steps by declared
prerequisites, and applies each step whose postcondition does not yet hold.
Already-satisfied steps are skipped, transient failures are retried with
exponential backoff, and the resulting snapshot is archived for later runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SpecPath = args[0]
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose
			opts.Plain = !term.IsTerminal(int(os.Stdout.Fd()))

			if !cmd.Flags().Changed("retries") {
				opts.Retries = -1
			}

			if err := validateSpecPath(opts.SpecPath); err != nil {
				return err
			}

			return provisionCmdRunner(opts)
		},
	}

	cmd.Flags().StringVar(&opts.SnapshotPath, "snapshot", defaultSnapshotPath, "Path to the archived snapshot")
	cmd.Flags().IntVar(&opts.Retries, "retries", engine.DefaultRetries, "Retry bound for transient failures (overrides the spec's settings)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "Worker bound for concurrent application; 0 uses the spec's settings")

	return cmd
}

func runProvision(opts provisionOptions) error {
	spec, err := loadSpec(opts.SpecPath)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(opts.SnapshotPath)
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(spec.Steps)
	if err != nil {
		return err
	}
	plan, err := engine.NewPlan(graph)
	if err != nil {
		return err
	}

	execOpts := engine.OptionsFromSettings(spec.Settings)
	execOpts.DryRun = execOpts.DryRun || opts.DryRun
	if opts.Retries >= 0 {
		execOpts.Retries = opts.Retries
	}
	if opts.Parallel > 0 {
		execOpts.Parallel = opts.Parallel
	}

	level := "info"
	if opts.Verbose || spec.Settings.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: !opts.Plain})
	if err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.WithFields(map[string]any{
		"spec":     spec.Name,
		"steps":    len(plan.Order),
		"parallel": execOpts.Parallel,
		"dry_run":  execOpts.DryRun,
	}).Info("starting provisioning")

	execCtx := &engine.ExecutionContext{
		Spec:     spec,
		Registry: registry,
		Snapshot: snap,
		Logger:   log,
		Options:  execOpts,
		Context:  ctx,
	}

	results, execErr := engine.Execute(execCtx, plan)
	renderResults(os.Stdout, results, opts.Plain)

	// The snapshot keeps whatever applied before a failure; archive it so
	// the next run resumes instead of redoing completed work.
	if !execOpts.DryRun && snap.Revision() > 0 {
		if err := snap.Save(opts.SnapshotPath); err != nil {
			if execErr != nil {
				log.Error(err, "failed to archive snapshot")
				return execErr
			}
			return err
		}
	}

	if execErr != nil {
		return execErr
	}

	fmt.Fprintln(os.Stdout, renderProvisionSummary(results, snap.Revision(), execOpts.DryRun, opts.Plain))
	return nil
}
