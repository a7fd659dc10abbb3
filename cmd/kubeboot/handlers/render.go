package handlers

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kubeboot/kubeboot/internal/inventory"
	"github.com/kubeboot/kubeboot/internal/orchestrator"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

// renderReport prints the per-node outcome of a run.
func renderReport(w io.Writer, r *orchestrator.Report) {
	fmt.Fprintf(w, "\nRun %s: %s\n", r.RunID, colorStatus(r.Status))

	for _, n := range r.Nodes {
		marker := ""
		if n.Primary {
			marker = ", primary"
		}
		fmt.Fprintf(w, "\n%s (%s%s)  %s\n", n.Address, n.Role, marker, n.Phase)

		for _, s := range n.Stages {
			fmt.Fprintf(w, "  %-20s %s%s\n", s.Stage, colorOutcome(s.Outcome), attemptsSuffix(s.Attempts))
			if s.Error != "" {
				fmt.Fprintf(w, "      %s\n", s.Error)
			}
		}
	}
}

// renderPlan prints what apply would run, without contacting any node.
func renderPlan(w io.Writer, inv *inventory.Inventory, graph *stage.Graph, st *state.Cluster) {
	fmt.Fprintln(w, "Plan (dry run, no node will be contacted):")

	for _, n := range inv.Nodes() {
		marker := ""
		if n.Primary {
			marker = ", primary"
		}
		fmt.Fprintf(w, "\n%s (%s%s)\n", n.Address, n.Role, marker)

		for _, s := range graph.Stages() {
			if !s.AppliesTo(n) {
				continue
			}
			if st.Succeeded(n.Address, s.Name) {
				fmt.Fprintf(w, "  %-20s %s\n", s.Name, color.GreenString("done"))
			} else {
				fmt.Fprintf(w, "  %-20s run\n", s.Name)
			}
		}
	}
}

func colorStatus(s orchestrator.Status) string {
	switch s {
	case orchestrator.StatusSuccess:
		return color.GreenString(string(s))
	case orchestrator.StatusPartial:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

func colorOutcome(o state.Outcome) string {
	switch o {
	case state.OutcomeSucceeded:
		return color.GreenString(string(o))
	case state.OutcomeFailed:
		return color.RedString(string(o))
	case state.OutcomeBlocked, state.OutcomeSkipped:
		return color.YellowString(string(o))
	default:
		return string(o)
	}
}

func attemptsSuffix(n int) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf(" (%d attempts)", n)
}
