package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nmoralez/rudder/internal/knowledge"
	"github.com/nmoralez/rudder/internal/session"
)

// Tokyo Night palette, matching the service's other terminal output.
var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	actionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0caf5")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
)

func simulateCmd() *cobra.Command {
	var flowPath string
	var factsPath string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a conversation by hand from the terminal",
		Long: `Simulate reads user messages line by line from stdin and prints the
resolved decision for each turn: the chosen action, the state transition,
and the signals that drove them. Useful for tuning a flow file before
deploying it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(flowPath, factsPath)
		},
	}

	cmd.Flags().StringVar(&flowPath, "flow", "", "flow specification file (default: built-in sales flow)")
	cmd.Flags().StringVar(&factsPath, "facts", "", "static facts file for knowledge retrieval")
	return cmd
}

func runSimulate(flowPath, factsPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flowPath != "" {
		cfg.Flow.Path = flowPath
	}

	spec, err := loadFlow(cfg)
	if err != nil {
		return fmt.Errorf("load flow: %w", err)
	}

	deps := session.Deps{Logger: log}
	if factsPath != "" {
		retriever, err := knowledge.LoadStaticRetriever(factsPath)
		if err != nil {
			return fmt.Errorf("load facts: %w", err)
		}
		deps.Retriever = retriever
	}

	manager := session.NewManager(spec, deps)
	sess, err := manager.StartSession()
	if err != nil {
		return err
	}

	fmt.Println(detailStyle.Render(fmt.Sprintf("flow %q, initial state %q, ctrl-d to quit", spec.Tenant, spec.InitialState)))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		result, err := sess.ProcessTurn(context.Background(), message)
		if err != nil {
			fmt.Println(warningStyle.Render("error: " + err.Error()))
			continue
		}
		printTurn(result)
	}
	return scanner.Err()
}

func printTurn(r *session.TurnResult) {
	fmt.Printf("%s %s\n",
		actionStyle.Render(r.Decision.FinalAction),
		stateStyle.Render("["+r.State+"]"))

	details := []string{
		fmt.Sprintf("intent=%s (%.2f)", r.Intent, r.Confidence),
	}
	if r.Objection.IsObjection {
		details = append(details, fmt.Sprintf("objection=%s tier=%d", r.Objection.PrimaryType, r.Objection.TierUsed))
	}
	if r.Frustration.Delta > 0 {
		details = append(details, fmt.Sprintf("frustration=+%d %v", r.Frustration.Delta, r.Frustration.Triggers))
	}
	if len(r.Decision.Flags) > 0 {
		details = append(details, "flags="+strings.Join(r.Decision.Flags, ","))
	}
	if len(r.Decision.DataUpdates) > 0 {
		details = append(details, fmt.Sprintf("data=%v", r.Decision.DataUpdates))
	}
	fmt.Println(detailStyle.Render("  " + strings.Join(details, "  ")))

	for _, a := range r.Anomalies {
		fmt.Println(warningStyle.Render("  ! " + a.Kind + ": " + a.Detail))
	}
	for _, c := range r.Decision.ConflictsDiscarded {
		fmt.Println(warningStyle.Render(fmt.Sprintf("  ! conflict on %q: kept %s from %s, dropped %s from %s",
			c.Key, c.WinningValue, c.WinningSource, c.LosingValue, c.LosingSource)))
	}
}
