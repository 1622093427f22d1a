package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/stratum/internal/engine"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <spec-file>",
		Short: "Show the execution order without applying anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateSpecPath(args[0]); err != nil {
				return err
			}

			spec, err := loadSpec(args[0])
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

			fmt.Fprintf(os.Stdout, "Execution plan for %s (%d steps):\n\n%s", spec.Name, len(plan.Order), plan.String())
			return nil
		},
	}

	return cmd
}
