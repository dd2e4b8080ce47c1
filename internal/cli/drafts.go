package cli

import (
	"context"
	"fmt"
	"os"

	"grant-assistant/internal/app"
	"grant-assistant/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	draftsCmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage saved drafts",
	}

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Snapshot the validated context as a draft",
		RunE:  runDraftsSave,
	}
	saveCmd.Flags().StringP("name", "n", "", "Draft name (default: acronym, title or timestamp)")
	saveCmd.Flags().Bool("new", false, "Create a new draft instead of updating the current one")

	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Write one draft as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runDraftsExport,
	}
	exportCmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	draftsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List drafts, most recent first",
			RunE:  runDraftsList,
		},
		saveCmd,
		&cobra.Command{
			Use:   "load ID",
			Short: "Restore a draft's context into the session and make it current",
			Args:  cobra.ExactArgs(1),
			RunE:  runDraftsLoad,
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a draft",
			Args:  cobra.ExactArgs(1),
			RunE:  runDraftsDelete,
		},
		exportCmd,
		&cobra.Command{
			Use:   "import [FILE]",
			Short: "Add an exported draft under a new id",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runDraftsImport,
		},
	)
	RootCmd.AddCommand(draftsCmd)
}

func runDraftsList(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "drafts-list", func(ctx context.Context, a *app.App) error {
		list, err := a.Drafts.List(ctx)
		if err != nil {
			return err
		}
		current := a.Drafts.Current()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"", "ID", "Name", "Version", "Fields", "Updated"})
		for _, d := range list {
			marker := ""
			if d.ID == current {
				marker = "*"
			}
			t.AppendRow(table.Row{marker, d.ID, d.Name, d.Version, len(d.Context.PresentFields()),
				d.UpdatedAt.Local().Format("2006-01-02 15:04")})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	})
}

func runDraftsSave(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	fresh, _ := cmd.Flags().GetBool("new")

	return runWithApp(cmd, "drafts-save", func(ctx context.Context, a *app.App) error {
		if fresh {
			if err := a.Drafts.NewDraft(ctx); err != nil {
				return err
			}
		}
		c := a.Sessions.GetValidatedContext()
		d, err := a.Drafts.Save(ctx, models.DraftState{Name: name, Context: &c})
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"ok": true, "id": d.ID, "name": d.Name, "version": d.Version})
	})
}

func runDraftsLoad(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "drafts-load", func(ctx context.Context, a *app.App) error {
		d, err := a.Drafts.Load(ctx, args[0])
		if err != nil {
			return err
		}
		var rejected []models.FieldName
		for field, value := range d.Context.Values() {
			res, err := a.Sessions.ValidateAndStore(ctx, field, value)
			if err != nil {
				return err
			}
			if !res.IsValid {
				rejected = append(rejected, field)
			}
		}
		return printJSON(map[string]interface{}{"ok": true, "id": d.ID, "name": d.Name, "rejected": rejected})
	})
}

func runDraftsDelete(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "drafts-delete", func(ctx context.Context, a *app.App) error {
		if err := a.Drafts.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf(`{"ok":true,"deleted":%q}`+"\n", args[0])
		return nil
	})
}

func runDraftsExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return runWithApp(cmd, "drafts-export", func(ctx context.Context, a *app.App) error {
		data, err := a.Drafts.Export(ctx, args[0])
		if err != nil {
			return err
		}
		return writeOutput(out, data)
	})
}

func runDraftsImport(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	blob, err := readInput(path)
	if err != nil {
		return err
	}
	return runWithApp(cmd, "drafts-import", func(ctx context.Context, a *app.App) error {
		d, err := a.Drafts.Import(ctx, blob)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"ok": true, "id": d.ID, "name": d.Name})
	})
}
