package main

import (
	"fmt"
	"strings"

	"aicouncil/pkg/counciltypes"
)

func formatStatus(state *counciltypes.SessionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Saved session at turn %d (%d completed)\n", state.TurnCounter, len(state.SessionLog))

	advisors := state.Advisors()
	if len(advisors) == 0 {
		b.WriteString("Advisors: none selected\n")
	} else {
		b.WriteString("Advisors:\n")
		for _, advisor := range advisors {
			fmt.Fprintf(&b, "  - %s (%s)\n", advisor.Name, advisor.ModelID)
		}
	}
	if state.RapporteurModelID != "" {
		fmt.Fprintf(&b, "Rapporteur: %s\n", state.RapporteurModelID)
	}
	fmt.Fprintf(&b, "Total cost: $%.6f\n", state.TotalSessionCost)
	fmt.Fprintf(&b, "Transcript: %s\n", state.OutputFilename)
	return b.String()
}
