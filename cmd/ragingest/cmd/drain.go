package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/batch"
	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/output"
)

func newDrainCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process queued messages once and exit",
		Long: `Receive and process batches until the queue has no visible messages,
then print what was acknowledged and what was retained.

Retained messages stay hidden for queue.visibility_timeout, so a message that
fails is attempted once per drain. No notifications are sent.`,
		Example: `  ragingest drain
  ragingest drain --json | jq '.[].retained'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := runDrain(cmd.Context(), currentConfig())
			if jsonOutput {
				if encErr := writeJSON(cmd.OutOrStdout(), results); encErr != nil {
					return encErr
				}
			} else {
				printDrain(cmd.OutOrStdout(), results)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output batch results as JSON")

	return cmd
}

func runDrain(ctx context.Context, cfg *config.Config) ([]batch.Result, error) {
	svc, err := openServices(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()

	poller := svc.poller(svc.processor(notify.Discard{}, notify.NoSessions{}), nil)
	results, err := poller.Drain(ctx)
	if results == nil {
		results = []batch.Result{}
	}
	return results, err
}

func printDrain(w io.Writer, results []batch.Result) {
	out := output.New(w)
	if len(results) == 0 {
		out.Status("📭", "Queue is empty")
		return
	}

	var acked, retained int
	for _, r := range results {
		acked += len(r.Acknowledged)
		retained += len(r.Retained)
		for _, o := range r.Failures {
			out.Errorf("%s %s: %s", o.Kind, o.Document, o.Error)
		}
	}

	if retained == 0 {
		out.Successf("Processed %d batch(es): %d message(s) acknowledged", len(results), acked)
		return
	}
	out.Warningf("Processed %d batch(es): %d acknowledged, %d retained for redelivery",
		len(results), acked, retained)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
