package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"grant-assistant/internal/app"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Answer the assistant's questions line by line",
		Long: "Starts the guided interview on stdin. Type /save to store a draft, " +
			"/status to see step progress and /quit to leave. Drafts are also saved periodically.",
		RunE: runChat,
	}
	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	return runWithApp(cmd, "chat", func(ctx context.Context, a *app.App) error {
		conv := a.NewConversation()
		stop := a.Drafts.StartAutoSave(ctx, conv.DraftState)
		defer stop()

		fmt.Println(conv.Opening())
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/save":
				state, ok := conv.DraftState()
				if !ok {
					fmt.Println("Nothing to save yet.")
					continue
				}
				d, err := a.Drafts.Save(ctx, state)
				if err != nil {
					return err
				}
				fmt.Printf("Saved draft %q (%s, version %d).\n", d.Name, d.ID, d.Version)
				continue
			case "/status":
				renderSteps(a)
				continue
			}

			turn, err := conv.Reply(ctx, line)
			if err != nil {
				return err
			}
			fmt.Println(turn.Reply)
		}
	})
}
