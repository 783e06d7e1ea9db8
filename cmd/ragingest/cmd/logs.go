package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/logging"
)

type logsOptions struct {
	lines   int
	follow  bool
	level   string
	pattern string
	file    string
	noColor bool
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the service log",
		Long: `Print the last lines of the JSON service log, optionally filtered by level
or a regular expression, and keep following it with -f.`,
		Example: `  ragingest logs -n 100
  ragingest logs -f --level warn
  ragingest logs --grep 'ERR_30[0-9]'`,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow new entries")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.pattern, "grep", "", "Only entries matching this regular expression")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default ~/.ragingest/logs/ragingest.log)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored levels")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.file)
	if err != nil {
		return err
	}

	vc := logging.ViewerConfig{Level: opts.level, NoColor: opts.noColor || !isTerminal(cmd)}
	if opts.pattern != "" {
		re, err := regexp.Compile(opts.pattern)
		if err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
		vc.Pattern = re
	}
	viewer := logging.NewViewer(vc, cmd.OutOrStdout())

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := make(chan logging.LogEntry)
	errc := make(chan error, 1)
	go func() {
		errc <- viewer.Follow(ctx, path, ch)
	}()
	for {
		select {
		case e := <-ch:
			viewer.Print([]logging.LogEntry{e})
		case err := <-errc:
			return err
		}
	}
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && logging.IsTerminal(f)
}
