package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/preceptor/internal/presentation/graph"
	"github.com/aretw0/preceptor/pkg/catalog"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/spf13/cobra"
)

// phasesCmd represents the phases command
var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List the tutoring phases or export them as a diagram",
	Long: `Lists the phase sequence with the first line of each prompt template.
With --mermaid it prints a Mermaid flowchart instead; --state overlays the
progress of a saved session state on the diagram.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		statePath, _ := cmd.Flags().GetString("state")
		out := cmd.OutOrStdout()

		if mermaid {
			var overlay *graph.Overlay
			if statePath != "" {
				state, err := readState(statePath)
				if err != nil {
					return err
				}
				overlay = graph.OverlayFor(state)
			}
			fmt.Fprint(out, graph.GenerateMermaid(overlay))
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tPHASE\tPROMPT")
		for i, p := range domain.Sequence() {
			tmpl, _ := catalog.Template(p)
			first, _, _ := strings.Cut(strings.TrimSpace(tmpl), "\n")
			if p.IsTerminal() {
				first = "(case report and virtual patient)"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, p, first)
		}
		return tw.Flush()
	},
}

func readState(path string) (*domain.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return &state, nil
}

func init() {
	rootCmd.AddCommand(phasesCmd)
	phasesCmd.Flags().Bool("mermaid", false, "Print a Mermaid flowchart")
	phasesCmd.Flags().String("state", "", "Session state JSON to overlay on the flowchart")
}
