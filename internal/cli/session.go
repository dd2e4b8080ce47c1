package cli

import (
	"context"
	"fmt"

	"grant-assistant/internal/app"

	"github.com/spf13/cobra"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the active session",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the active session as JSON",
		RunE:  runSessionExport,
	}
	exportCmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	importCmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Replace the active session with an exported one",
		Long:  "Reads an exported session from FILE or stdin. Fields that fail validation are dropped.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSessionImport,
	}

	sessionCmd.AddCommand(
		exportCmd,
		importCmd,
		&cobra.Command{
			Use:   "show",
			Short: "Print the active session",
			RunE:  runSessionShow,
		},
		&cobra.Command{
			Use:   "clear-invalid",
			Short: "Re-validate the session and drop fields that no longer pass",
			RunE:  runSessionClearInvalid,
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete expired sessions from storage",
			RunE:  runSessionSweep,
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Discard the session and application context and start over",
			RunE:  runSessionReset,
		},
	)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "session-show", func(ctx context.Context, a *app.App) error {
		s, ok := a.Sessions.Current()
		if !ok {
			return fmt.Errorf("no active session")
		}
		return printJSON(s)
	})
}

func runSessionExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return runWithApp(cmd, "session-export", func(ctx context.Context, a *app.App) error {
		data, err := a.Sessions.ExportSession()
		if err != nil {
			return err
		}
		return writeOutput(out, data)
	})
}

func runSessionImport(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	blob, err := readInput(path)
	if err != nil {
		return err
	}
	return runWithApp(cmd, "session-import", func(ctx context.Context, a *app.App) error {
		res, err := a.Sessions.ImportSession(ctx, blob)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"ok":        true,
			"sessionId": res.Session.ID,
			"dropped":   res.Dropped,
		})
	})
}

func runSessionClearInvalid(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "session-clear-invalid", func(ctx context.Context, a *app.App) error {
		dropped, err := a.Sessions.ClearInvalidData(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"ok": true, "dropped": dropped})
	})
}

func runSessionSweep(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "session-sweep", func(ctx context.Context, a *app.App) error {
		n, err := a.Sessions.SweepExpired(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"ok": true, "removed": n})
	})
}

func runSessionReset(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "session-reset", func(ctx context.Context, a *app.App) error {
		if err := a.Reset(ctx); err != nil {
			return err
		}
		s, _ := a.Sessions.Current()
		return printJSON(map[string]interface{}{"ok": true, "sessionId": s.ID})
	})
}
