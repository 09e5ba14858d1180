package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Feed the conversation buffer",
	}
	cmd.AddCommand(messageAppendCmd())
	cmd.AddCommand(messageFlushCmd())
	cmd.AddCommand(messagePendingCmd())
	return cmd
}

func messageAppendCmd() *cobra.Command {
	var msg client.Message
	cmd := &cobra.Command{
		Use:   "append <thread-id> <text>",
		Short: "Append a message to a thread's buffer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg.ThreadID, msg.Text = args[0], args[1]
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now().UTC()
			}

			res, err := apiClient.Messages.Append(cmd.Context(), msg)
			if err != nil {
				return fmt.Errorf("append: %w", err)
			}
			output(res, res.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&msg.MessageID, "id", "", "Source message id")
	cmd.Flags().StringVar(&msg.Sender, "sender", "", "Sender display name")
	cmd.Flags().StringVar(&msg.SenderPersonID, "sender-person", "", "Sender person id")
	cmd.Flags().StringVar(&msg.Source, "source", "", "Source system, e.g. whatsapp")
	cmd.Flags().StringVar(&msg.Channel, "channel", "", "Channel name")
	return cmd
}

func messageFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush <thread-id>",
		Short: "Index a thread's buffered messages now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := apiClient.Messages.Flush(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("flush: %w", err)
			}
			output(map[string]any{"thread_id": args[0], "flushed": n}, fmt.Sprintf("%d", n))
			return nil
		},
	}
}

func messagePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending <thread-id>",
		Short: "List a thread's buffered, not yet indexed messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := apiClient.Messages.Pending(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("pending: %w", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(msgs))
				for _, m := range msgs {
					rows = append(rows, []string{m.Timestamp.Format("2006-01-02 15:04"), truncate(m.Sender, 20), truncate(m.Text, 60)})
				}
				formatTable([]string{"WHEN", "SENDER", "TEXT"}, rows)
				return nil
			}
			output(msgs, fmt.Sprintf("%d", len(msgs)))
			return nil
		},
	}
}
