package main

import (
	"context"
	"os"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/presentation/tui"
	"github.com/aretw0/tally/pkg/runner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long: `Starts an interactive conversation on Stdin/Stdout.

Text mode renders replies as markdown when Stdout is a terminal.
JSON mode reads one message per line and writes NDJSON events, for scripting.
Ctrl+C cancels the running request; Ctrl+C at the prompt leaves.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	// Make 'chat' the default when no subcommand is given.
	rootCmd.RunE = runChat

	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
		c.Flags().Bool("plain", false, "Disable markdown rendering")
		c.Flags().String("conversation", "", "Continue a persisted conversation")
		c.Flags().Int("budget", 0, "Step budget for every turn (0 uses engine.step_budget)")
		c.Flags().String("user", "", "Override user.user_id")
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.Config()
	identity := cfg.User
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		identity.UserID = user
		identity.Name = ""
	}
	jsonMode, _ := cmd.Flags().GetBool("json")
	plain, _ := cmd.Flags().GetBool("plain")
	conversation, _ := cmd.Flags().GetString("conversation")
	budget, _ := cmd.Flags().GetInt("budget")

	var handler runner.IOHandler
	if jsonMode {
		handler = runner.NewJSONHandler(os.Stdin, os.Stdout)
	} else {
		opts := []runner.TextHandlerOption{runner.WithTextHandlerProgress(cfg.Engine.Progress)}
		if !plain && term.IsTerminal(int(os.Stdout.Fd())) {
			opts = append(opts, runner.WithTextHandlerRenderer(tui.NewRenderer(tui.DefaultWordWrap)))
			name := identity.Name
			if name == "" {
				name = identity.UserID
			}
			tui.PrintBanner(os.Stdout, tally.Version, name)
		}
		handler = runner.NewTextHandler(os.Stdin, os.Stdout, opts...)
	}

	r := runner.NewRunner(
		runner.WithLogger(c.Logger()),
		runner.WithInputHandler(handler),
		runner.WithIdentity(identity),
		runner.WithConversationID(conversation),
		runner.WithBudget(budget),
	)
	return r.Run(context.Background(), c.Assistant())
}
