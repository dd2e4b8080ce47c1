package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"grant-assistant/internal/app"
	"grant-assistant/internal/assistant/templates"
	"grant-assistant/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template registry",
	}
	templatesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE:  runTemplatesList,
	})

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Score every template against the validated context",
		RunE:  runSelect,
	}
	selectCmd.Flags().Bool("store", false, "Store the winning template as the selected template")

	populateCmd := &cobra.Command{
		Use:   "populate",
		Short: "Fill a template from the validated context and print the renderer payload",
		RunE:  runPopulate,
	}
	populateCmd.Flags().StringP("template", "t", "", "Template ID (default: selected or best-scoring template)")
	populateCmd.Flags().StringP("out", "o", "", "Write the payload to this file instead of stdout")

	generateCmd := &cobra.Command{
		Use:   "generate [SUBSECTION...]",
		Short: "Draft subsections with the text-generation service",
		Long:  "Drafts the named subsections, or every subsection of the template when none is named.",
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringP("template", "t", "", "Template ID (default: selected or best-scoring template)")
	generateCmd.Flags().String("notes", "", "Extra instructions for the generator")
	generateCmd.Flags().Bool("prompt-only", false, "Print the prompt without calling the service")

	RootCmd.AddCommand(templatesCmd, selectCmd, populateCmd, generateCmd)
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "templates-list", func(ctx context.Context, a *app.App) error {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Name", "Programme", "Budget", "Subsections"})
		for _, tpl := range a.Templates.Templates() {
			t.AppendRow(table.Row{tpl.ID, tpl.Name, tpl.ProgramType, tpl.BudgetRange, tpl.SubsectionCount()})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	})
}

func runSelect(cmd *cobra.Command, args []string) error {
	store, _ := cmd.Flags().GetBool("store")

	return runWithApp(cmd, "select", func(ctx context.Context, a *app.App) error {
		sel := a.Templates.SelectTemplate(a.Sessions.GetValidatedContext())

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Template", "Score", "Reasons"})
		for _, c := range sel.Candidates {
			id := c.TemplateID
			if id == sel.TemplateID {
				id += " *"
			}
			t.AppendRow(table.Row{id, c.Score, strings.Join(c.Reasons, "; ")})
		}
		for _, r := range sel.Rejected {
			t.AppendRow(table.Row{r.TemplateID, "-", "filtered: " + r.Reason})
		}
		t.SetStyle(table.StyleLight)
		t.Render()

		if !sel.Found() {
			fmt.Println("No template matches the current context.")
			return nil
		}
		if store {
			res, err := a.Sessions.ValidateAndStore(ctx, models.FieldSelectedTemplate, sel.TemplateID)
			if err != nil {
				return err
			}
			if !res.IsValid {
				return fmt.Errorf("could not store %s: %s", sel.TemplateID, res.Reason)
			}
			fmt.Printf("Selected %s.\n", sel.TemplateID)
		}
		return nil
	})
}

// resolveTemplate returns the explicit id, else the selected template, else
// the best-scoring one.
func resolveTemplate(a *app.App, explicit string, c models.ApplicationContext) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.SelectedTemplate != nil {
		return *c.SelectedTemplate, nil
	}
	sel := a.Templates.SelectTemplate(c)
	if !sel.Found() {
		return "", fmt.Errorf("no template matches the current context; pass --template")
	}
	return sel.TemplateID, nil
}

func runPopulate(cmd *cobra.Command, args []string) error {
	templateID, _ := cmd.Flags().GetString("template")
	out, _ := cmd.Flags().GetString("out")

	return runWithApp(cmd, "populate", func(ctx context.Context, a *app.App) error {
		c := a.Sessions.GetValidatedContext()
		id, err := resolveTemplate(a, templateID, c)
		if err != nil {
			return err
		}
		payload, err := a.Templates.BuildRenderPayload(id, c)
		if err != nil {
			return err
		}
		if err := recordProgress(ctx, a, payload.Sections); err != nil {
			return err
		}
		data, err := payload.JSON()
		if err != nil {
			return err
		}
		return writeOutput(out, data)
	})
}

// recordProgress mirrors populated subsections into section progress.
func recordProgress(ctx context.Context, a *app.App, results []models.TemplatePopulationResult) error {
	for _, r := range results {
		status := models.StatusInProgress
		if r.Completeness >= 80 && len(r.MissingRequirements) == 0 {
			status = models.StatusCompleted
		}
		completeness, words, limit := r.Completeness, r.WordCount, r.WordLimit
		if _, err := a.Context.UpdateSectionProgress(ctx, r.SubsectionID, models.SectionProgressUpdate{
			Status:            &status,
			CompletionPercent: &completeness,
			WordCount:         &words,
			WordLimit:         &limit,
		}); err != nil {
			return err
		}
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	templateID, _ := cmd.Flags().GetString("template")
	notes, _ := cmd.Flags().GetString("notes")
	promptOnly, _ := cmd.Flags().GetBool("prompt-only")

	return runWithApp(cmd, "generate", func(ctx context.Context, a *app.App) error {
		c := a.Sessions.GetValidatedContext()
		id, err := resolveTemplate(a, templateID, c)
		if err != nil {
			return err
		}
		req := templates.PromptRequest{TemplateID: id, Context: c, UserNotes: notes}

		if promptOnly || a.Completer == nil {
			ids, err := subsectionIDs(a, id, args)
			if err != nil {
				return err
			}
			if !promptOnly {
				fmt.Fprintln(os.Stderr, "No generation service configured; printing the prompt instead.")
			}
			for _, sub := range ids {
				req.SubsectionID = sub
				prompt, err := a.Templates.GenerateAIPrompt(req)
				if err != nil {
					return err
				}
				fmt.Println(prompt)
			}
			return nil
		}

		results, err := a.Templates.GenerateSections(ctx, a.Completer, req, args)
		if err != nil {
			return err
		}
		if err := recordProgress(ctx, a, results); err != nil {
			return err
		}
		return printJSON(results)
	})
}

// subsectionIDs returns explicit, or every subsection id of the template.
func subsectionIDs(a *app.App, templateID string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	t, err := a.Templates.Template(templateID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, sec := range t.Sections {
		for _, sub := range sec.Subsections {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}
