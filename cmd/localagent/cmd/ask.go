package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/localagent/internal/agent"
	"github.com/Aman-CERP/localagent/internal/daemon"
	"github.com/Aman-CERP/localagent/internal/eventbus"
	"github.com/Aman-CERP/localagent/internal/model"
	"github.com/Aman-CERP/localagent/internal/ui"
)

var askConversationID int64

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the agent a question about your files",
	Long: `Ask runs one agent turn: the local model reasons over your question,
calls tools (search, read_file, ...) as needed, and streams its answer.
Pass --conversation to append the exchange to a persistent conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		styles := ui.GetStyles(noColor())
		runID := uuid.NewString()

		render := func(e eventbus.Event) {
			switch e.Type {
			case eventbus.TextMessageContent:
				fmt.Fprint(out, e.Delta)
			case eventbus.TextMessageEnd:
				fmt.Fprintln(out)
			case eventbus.ToolCallStart:
				fmt.Fprintln(out, styles.Muted.Render("→ "+e.ToolName))
			case eventbus.ToolCallResult:
				if e.ToolIsError {
					fmt.Fprintln(out, styles.Warn.Render("  tool error: "+firstLine(e.ToolResult)))
				}
			case eventbus.RunError:
				fmt.Fprintln(out, styles.Bad.Render("run failed: "+e.Error))
			}
		}

		if client := daemonClient(ctx); client != nil {
			return askViaDaemon(ctx, client, runID, question, render)
		}

		rt, err := newLocalRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		eng, err := rt.AgentEngine()
		if err != nil {
			return err
		}

		bus := eventbus.New(0)
		sub := bus.Subscribe()
		defer sub.Close()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range sub.Events {
				if e.RunID == runID {
					render(e)
				}
			}
		}()

		ag := rt.Settings.Agent
		_, runErr := eng.Run(ctx,
			[]agent.Message{{Role: model.RoleUser, Content: question}},
			agent.Options{
				RunID:           runID,
				ModelID:         ag.ModelID,
				MaxIterations:   ag.MaxIterations,
				MaxTokens:       ag.MaxTokens,
				ContextSize:     ag.ContextWindow,
				Temperature:     ag.Temperature,
				ConversationID:  askConversationID,
				AutoApproveSafe: ag.AutoApproveSafe,
			},
			bus,
		)
		sub.Close()
		wg.Wait()
		return runErr
	},
}

// askViaDaemon subscribes to the event stream for progressive output,
// then issues the blocking ask call; the final answer arrives through
// the stream before the call returns.
func askViaDaemon(ctx context.Context, client *daemon.Client, runID, question string, render func(eventbus.Event)) error {
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		_ = client.Subscribe(streamCtx, func(e eventbus.Event) {
			if e.RunID == runID {
				render(e)
			}
		})
	}()

	_, err := client.Ask(ctx, daemon.AskParams{
		Message:        question,
		ConversationID: askConversationID,
		RunID:          runID,
	})
	stopStream()
	<-streamed
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	askCmd.Flags().Int64Var(&askConversationID, "conversation", 0, "append this exchange to the given conversation id")
	rootCmd.AddCommand(askCmd)
}
