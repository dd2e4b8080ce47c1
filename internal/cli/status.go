package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"grant-assistant/internal/app"
	"grant-assistant/internal/assistant/appcontext"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workflow step progress and the validated context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, "status", func(ctx context.Context, a *app.App) error {
				renderSteps(a)
				return printJSON(a.Context.Context())
			})
		},
	}
	RootCmd.AddCommand(cmd)
}

func renderSteps(a *app.App) {
	next := a.Context.NextStep()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"", "Step", "Complete", "Missing"})
	for _, step := range appcontext.Steps {
		v, err := a.Context.ValidateStepRequirements(step)
		if err != nil {
			continue
		}
		marker := ""
		if step == next {
			marker = "→"
		}
		missing := make([]string, len(v.MissingFields))
		for i, f := range v.MissingFields {
			missing[i] = string(f)
		}
		t.AppendRow(table.Row{marker, step, fmt.Sprintf("%d%%", v.CompletionPercentage), strings.Join(missing, ", ")})
	}
	overall := a.Context.GetOverallCompletion()
	t.AppendFooter(table.Row{"", "sections", fmt.Sprintf("%d%%", overall.Percentage),
		fmt.Sprintf("%d/%d done", overall.CompletedSections, overall.TotalSections)})
	t.SetStyle(table.StyleLight)
	t.Render()
}
