package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/comigor/convo-go/internal/config"
	"github.com/comigor/convo-go/internal/conversation"
	"github.com/comigor/convo-go/internal/history"
	"github.com/comigor/convo-go/internal/logger"
	"github.com/comigor/convo-go/internal/runner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "convo [message]",
		Short:         "Send one message to the conversation API and print the reply",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendConversation(cmd, args, out)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("host", config.DefaultHost, "conversation API host")
	pf.String("port", config.DefaultPort, "conversation API port")
	pf.String("path", config.DefaultPath, "conversation API path")
	pf.Duration("timeout", 0, "request timeout (0 waits indefinitely)")
	pf.String("conversation-id", config.DefaultConversationID, "conversation identifier")
	pf.String("parent-message-id", config.DefaultParentMessageID, "identifier of the message being replied to")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("history", false, "record answered exchanges in the local transcript")
	pf.String("history-path", config.DefaultHistoryPath, "transcript database file")

	rootCmd.Flags().Bool("continue", false, "reply to the last recorded message of the conversation")
	rootCmd.Flags().Bool("new", false, "start a new conversation with a random identifier")
	rootCmd.MarkFlagsMutuallyExclusive("continue", "new")

	rootCmd.AddCommand(historyCmd(out))

	return rootCmd
}

func sendConversation(cmd *cobra.Command, args []string, out io.Writer) error {
	ctx := cmd.Context()

	cfg, err := config.LoadWithFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	req := conversation.Request{
		Message:         cfg.Conversation.Message,
		ConversationID:  cfg.Conversation.ConversationID,
		ParentMessageID: cfg.Conversation.ParentMessageID,
	}
	if len(args) == 1 {
		req.Message = args[0]
	}

	startNew, _ := cmd.Flags().GetBool("new")
	continueLast, _ := cmd.Flags().GetBool("continue")

	if startNew {
		req.ConversationID = uuid.NewString()
		req.ParentMessageID = ""
	}

	var opts []runner.Option
	if cfg.History.Enabled || continueLast {
		store, err := history.Open(cfg.History.Path)
		switch {
		case err != nil && continueLast:
			return fmt.Errorf("open history: %w", err)
		case err != nil:
			logger.L.Warn("history unavailable; exchange will not be recorded", "path", cfg.History.Path, "error", err)
		default:
			defer store.Close()
			opts = append(opts, runner.WithRecorder(store))
		}

		if continueLast {
			last, err := store.Last(ctx, req.ConversationID)
			if err != nil {
				return fmt.Errorf("continue conversation %s: %w", req.ConversationID, err)
			}
			req.ParentMessageID = last.MessageID
		}
	}

	client := conversation.NewClient(cfg.Server)
	logger.L.Debug("sending conversation request",
		"endpoint", client.Endpoint(),
		"conversationId", req.ConversationID,
		"parentMessageId", req.ParentMessageID)

	return runner.New(client, out, opts...).Execute(ctx, req)
}

func historyCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "List exchanges recorded in the local transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFlags(cmd.Flags())
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger.SetLevel(cfg.LogLevel)

			conversationID := ""
			if len(args) == 1 {
				conversationID = args[0]
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			exchanges, err := store.List(cmd.Context(), conversationID)
			if err != nil {
				return err
			}
			if len(exchanges) == 0 {
				fmt.Fprintln(out, "no recorded exchanges")
				return nil
			}
			for _, ex := range exchanges {
				printExchange(out, ex)
			}
			return nil
		},
	}
}

func printExchange(out io.Writer, ex history.Exchange) {
	fmt.Fprintf(out, "%s conversationId=%s parentMessageId=%s messageId=%s\n",
		ex.CreatedAt.Format(time.RFC3339), ex.ConversationID, ex.ParentMessageID, ex.MessageID)
	fmt.Fprintf(out, "  message: %s\n", ex.Message)
	fmt.Fprintf(out, "  response: %s\n", ex.Response)
}
