package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmoralez/rudder/internal/blackboard"
	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/intent"
	"github.com/nmoralez/rudder/internal/objection"
)

func validateCmd() *cobra.Command {
	var flowPath string
	var example bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a flow specification file",
		Long: `Validate loads a flow file and runs every check the engine runs at
startup: state graph consistency, rule targets, regex compilation for
intents and objections, source registry membership, and limit sanity.
Exits non-zero when the flow would be rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(flowPath, example)
		},
	}

	cmd.Flags().StringVar(&flowPath, "flow", "", "flow specification file")
	cmd.Flags().BoolVar(&example, "example", false, "validate the built-in example flow")
	return cmd
}

func runValidate(flowPath string, example bool) error {
	var spec *flow.Specification
	var err error

	switch {
	case example:
		spec = flow.Default()
		if err := spec.Validate(); err != nil {
			return err
		}
	case flowPath != "":
		spec, err = flow.Load(flowPath)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --flow or --example is required")
	}

	// The file-level checks passed; also compile everything the engine
	// compiles so a bad pattern fails here instead of at serve time.
	if _, err := intent.NewClassifier(spec); err != nil {
		return fmt.Errorf("intent patterns: %w", err)
	}
	if _, err := objection.NewDetector(spec.Objections); err != nil {
		return fmt.Errorf("objection patterns: %w", err)
	}
	sources, err := blackboard.BuildSources(spec)
	if err != nil {
		return fmt.Errorf("knowledge sources: %w", err)
	}

	fmt.Printf("%s %s\n", actionStyle.Render("valid"), stateStyle.Render("["+spec.Tenant+"]"))
	fmt.Println(detailStyle.Render(fmt.Sprintf("  %d states, %d sources, %d intents, %d objection types",
		len(spec.States), len(sources), len(spec.Intents), len(spec.Objections))))
	return nil
}
