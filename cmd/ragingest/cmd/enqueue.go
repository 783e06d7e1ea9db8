package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/objectstore"
	"github.com/Aman-CERP/ragingest/internal/output"
	"github.com/Aman-CERP/ragingest/internal/queue"
	"github.com/Aman-CERP/ragingest/internal/storagepath"
)

type enqueueOptions struct {
	removed bool
	file    string
}

func newEnqueueCmd() *cobra.Command {
	var opts enqueueOptions

	cmd := &cobra.Command{
		Use:   "enqueue <bucket> <key>",
		Short: "Publish a change notification for one object",
		Long: `Publish an ObjectCreated (or, with --removed, ObjectRemoved) notification
for bucket/key onto the queue.

key is the plain object key, <visibility>/<owner>/<path>, for example
"private/us-east-1:alice/report.pdf". It is URL-encoded the way bucket
notifications are. With --file the file is first copied into the bucket
under storage.root.`,
		Example: `  # Upload and announce a document for owner alice
  ragingest enqueue docs private/alice/report.pdf --file ./report.pdf

  # Announce its removal
  ragingest enqueue docs private/alice/report.pdf --removed`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := runEnqueue(cmd.Context(), currentConfig(), args[0], args[1], opts)
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Enqueued %s", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.removed, "removed", false, "Publish ObjectRemoved instead of ObjectCreated")
	cmd.Flags().StringVar(&opts.file, "file", "", "Copy this file into the bucket first")
	cmd.MarkFlagsMutuallyExclusive("removed", "file")

	return cmd
}

func runEnqueue(ctx context.Context, cfg *config.Config, bucket, key string, opts enqueueOptions) (string, error) {
	rawKey := storagepath.EncodeKey(key)
	p, err := storagepath.Parse(bucket, rawKey)
	if err != nil {
		return "", err
	}

	if opts.file != "" {
		content, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", opts.file, err)
		}
		objects, err := objectstore.NewFileStore(cfg.Storage.Root)
		if err != nil {
			return "", err
		}
		if err := objects.Put(bucket, p.Key, content); err != nil {
			return "", err
		}
	}

	ev := event.Created(bucket, rawKey)
	if opts.removed {
		ev = event.Removed(bucket, rawKey)
	}
	body, err := event.Encode(ev)
	if err != nil {
		return "", err
	}

	q, err := queue.Open(ctx, cfg.Queue.DSN, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReceives:       cfg.Queue.MaxReceives,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	return q.Send(ctx, body)
}
