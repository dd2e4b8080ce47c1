package cli

import (
	"context"
	"fmt"

	"grant-assistant/internal/app"
	"grant-assistant/internal/assistant/validator"
	"grant-assistant/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate FIELD VALUE",
		Short: "Check a value against a field's rules",
		Long:  "Validates VALUE for FIELD. With --store an accepted value is written to the session.",
		Args:  cobra.ExactArgs(2),
		RunE:  runValidate,
	}
	cmd.Flags().Bool("store", false, "Store the value in the session when it is accepted")
	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	field := models.FieldName(args[0])
	if !field.IsKnown() {
		return fmt.Errorf("unknown field %q", args[0])
	}
	store, _ := cmd.Flags().GetBool("store")

	return runWithApp(cmd, "validate", func(ctx context.Context, a *app.App) error {
		var res validator.Result
		if store {
			var err error
			if res, err = a.Sessions.ValidateAndStore(ctx, field, args[1]); err != nil {
				return err
			}
		} else {
			res = a.Sessions.Probe(field, args[1])
		}
		return printJSON(res)
	})
}
