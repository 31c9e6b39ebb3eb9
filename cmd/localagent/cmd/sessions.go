package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/ui"
)

var sessionsSearchLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted conversations",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("conversation id must be a number: %q", args[0])
		}

		ctx := cmd.Context()
		rt, err := newLocalRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		messages, err := rt.Store.GetMessages(ctx, id)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no messages in that conversation")
			return nil
		}

		styles := ui.GetStyles(noColor())
		for _, m := range messages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n\n",
				styles.Label.Render(string(m.Role)+":"),
				styles.Muted.Render(m.Timestamp.Format("2006-01-02 15:04:05")),
				m.Content)
		}
		return nil
	},
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search across all conversation messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		ctx := cmd.Context()

		rt, err := newLocalRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		messages, err := rt.Store.SearchMessages(ctx, query, sessionsSearchLimit)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
			return nil
		}

		styles := ui.GetStyles(noColor())
		for _, m := range messages {
			snippet := m.Content
			if len(snippet) > 120 {
				snippet = snippet[:120] + "…"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %d  %s  %s\n  %s\n",
				m.ConversationID,
				styles.Muted.Render(string(m.Role)),
				styles.Muted.Render(m.Timestamp.Format("2006-01-02 15:04")),
				styles.Snippet.Render(snippet))
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("conversation id must be a number: %q", args[0])
		}

		ctx := cmd.Context()
		rt, err := newLocalRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Store.DeleteConversation(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted conversation %d\n", id)
		return nil
	},
}

func init() {
	sessionsSearchCmd.Flags().IntVarP(&sessionsSearchLimit, "limit", "n", 20, "maximum number of matches")
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsSearchCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}
