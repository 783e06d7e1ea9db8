// Package cmd provides the CLI commands for ragingest.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/logging"
	"github.com/Aman-CERP/ragingest/internal/profiling"
	"github.com/Aman-CERP/ragingest/pkg/version"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// Persistent flags
var (
	configPath  string
	debugMode   bool
	profileOpts profiling.Options
)

// State set up by PersistentPreRunE.
var (
	loadedConfig   *config.Config
	loggingCleanup func()
	profile        *profiling.Session
)

// NewRootCmd creates the root command for the ragingest CLI.
func NewRootCmd() *cobra.Command {
	configPath, debugMode, profileOpts = "", false, profiling.Options{}
	loadedConfig = nil

	cmd := &cobra.Command{
		Use:   "ragingest",
		Short: "Idempotent document ingestion from bucket change notifications",
		Long: `ragingest consumes object-created and object-removed notifications from a
queue, indexes new documents into per-owner vector tables exactly once, and
removes them again when the object is deleted.

Messages whose every event succeeded are acknowledged; the rest stay on the
queue for redelivery and move to the dead-letter table after
queue.max_receives deliveries.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragingest version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./"+config.FileName+")")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRunE = teardown

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDrainCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newDeadLettersCmd())
	cmd.AddCommand(newRegistryCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup starts profiling, loads configuration and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = s
	}

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	loadedConfig = cfg

	cleanup, err := logging.SetupDefault(loggingConfig(cfg.Logging))
	loggingCleanup = cleanup
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))
	return nil
}

// teardown stops profiling and flushes the log file. It is safe to call
// more than once.
func teardown(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

func loggingConfig(c config.LoggingConfig) logging.Config {
	out := logging.Config{
		Level:         c.Level,
		FilePath:      c.File,
		MaxSizeMB:     c.MaxSizeMB,
		MaxFiles:      c.MaxFiles,
		WriteToStderr: true,
	}
	switch c.File {
	case "":
		out.FilePath = logging.DefaultLogPath()
	case "-":
		out.FilePath = ""
	}
	return out
}

// currentConfig returns the configuration loaded for this run.
func currentConfig() *config.Config {
	if loadedConfig == nil {
		return config.NewConfig()
	}
	return loadedConfig
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	// PersistentPostRunE is skipped when RunE fails.
	_ = teardown(nil, nil)
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}
