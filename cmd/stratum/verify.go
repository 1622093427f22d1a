package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/stratum/internal/logger"
	"github.com/alexisbeaulieu97/stratum/internal/model"
	"github.com/alexisbeaulieu97/stratum/internal/verifier"
)

type verifyOptions struct {
	SpecPath     string
	SnapshotPath string
	JSON         bool
	Verbose      bool
	Plain        bool
}

var verifyCmdRunner = runVerify

func newVerifyCmd(root *rootFlags) *cobra.Command {
	opts := verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <spec-file>",
		Short: "Check every step postcondition against the snapshot without applying anything",
		Long: `Verify re-evaluates each step's postcondition against the archived
snapshot. It never mutates state. Steps that applied before but no longer
hold are reported as drifted; steps with no apply record as never attempted.
Exit code 0 means every postcondition holds, 1 means at least one does not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SpecPath = args[0]
			opts.Verbose = root.verbose
			opts.Plain = !term.IsTerminal(int(os.Stdout.Fd()))

			if err := validateSpecPath(opts.SpecPath); err != nil {
				return err
			}

			return verifyCmdRunner(opts)
		},
	}

	cmd.Flags().StringVar(&opts.SnapshotPath, "snapshot", defaultSnapshotPath, "Path to the archived snapshot")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output the report as JSON")

	return cmd
}

// errVerificationFailed signals that at least one postcondition does not
// hold; the report itself was already rendered.
var errVerificationFailed = fmt.Errorf("verification failed: one or more postconditions do not hold")

func runVerify(opts verifyOptions) error {
	spec, err := loadSpec(opts.SpecPath)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(opts.SnapshotPath)
	if err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: !opts.JSON && !opts.Plain})
	if err != nil {
		return err
	}

	report, err := verifier.Verify(context.Background(), spec, snap, registry, log)
	if err != nil {
		return err
	}

	if opts.JSON {
		if err := printJSONReport(os.Stdout, report, opts.SpecPath); err != nil {
			return err
		}
	} else {
		renderReport(os.Stdout, report, opts.Plain)
	}

	if !report.Ok() {
		return errVerificationFailed
	}
	return nil
}

func printJSONReport(w *os.File, report *model.VerificationReport, specPath string) error {
	type jsonResult struct {
		StepID   string  `json:"step_id"`
		Kind     string  `json:"kind"`
		Status   string  `json:"status"`
		Holds    bool    `json:"holds"`
		Detail   string  `json:"detail,omitempty"`
		Duration float64 `json:"duration_seconds"`
	}
	type jsonReport struct {
		Spec      string       `json:"spec"`
		RunID     string       `json:"run_id"`
		Satisfied int          `json:"satisfied"`
		Missing   int          `json:"missing"`
		Drifted   int          `json:"drifted"`
		Unknown   int          `json:"unknown"`
		Ok        bool         `json:"ok"`
		Duration  float64      `json:"duration_seconds"`
		Results   []jsonResult `json:"results"`
	}

	out := jsonReport{
		Spec:      specPath,
		RunID:     report.RunID,
		Satisfied: report.Satisfied,
		Missing:   report.Missing,
		Drifted:   report.Drifted,
		Unknown:   report.Unknown,
		Ok:        report.Ok(),
		Duration:  report.Duration.Seconds(),
	}
	for _, res := range report.Results {
		out.Results = append(out.Results, jsonResult{
			StepID:   res.StepID,
			Kind:     res.Kind,
			Status:   string(res.Status),
			Holds:    res.Holds,
			Detail:   res.Detail,
			Duration: res.Duration.Seconds(),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
