package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/output"
	"github.com/Aman-CERP/ragingest/internal/queue"
)

// deadLetter is the printable form of a dead-lettered message.
type deadLetter struct {
	queue.Message
	Body string `json:"body"`
}

func newDeadLettersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List messages that exceeded queue.max_receives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			letters, err := listDeadLetters(cmd.Context(), currentConfig())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), letters)
			}

			out := output.New(cmd.OutOrStdout())
			if len(letters) == 0 {
				out.Success("No dead-lettered messages")
				return nil
			}
			out.Warningf("%d dead-lettered message(s)", len(letters))
			for _, l := range letters {
				out.Newline()
				out.Fields(
					"ID", l.ID,
					"Deliveries", fmt.Sprint(l.ReceiveCount),
					"Sent", l.SentAt.Format("2006-01-02 15:04:05"),
					"Body", l.Body,
				)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func listDeadLetters(ctx context.Context, cfg *config.Config) ([]deadLetter, error) {
	q, err := queue.Open(ctx, cfg.Queue.DSN, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceives:       cfg.Queue.MaxReceives,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	msgs, err := q.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	letters := make([]deadLetter, 0, len(msgs))
	for _, m := range msgs {
		letters = append(letters, deadLetter{Message: m, Body: string(m.Body)})
	}
	return letters, nil
}
