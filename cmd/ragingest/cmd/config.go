package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragingest/configs"
	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage ragingest configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/ragingest/config.yaml)
  3. Project config (./ragingest.yaml, or --config)
  4. Environment variables (RAGINGEST_*)`,
		Example: `  # Write an annotated ragingest.yaml
  ragingest config init

  # Show the effective configuration
  ragingest config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		user  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated configuration file",
		Long: `Write the annotated configuration template to ./ragingest.yaml, the --path
given, or with --user to ~/.config/ragingest/config.yaml.

An existing file is left alone unless --force is given, in which case it is
backed up first.`,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case user:
				path = config.GetUserConfigPath()
			case path == "" && configPath != "":
				path = configPath
			case path == "":
				path = config.FileName
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "File to write (default ./"+config.FileName+")")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.MarkFlagsMutuallyExclusive("path", "user")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.Template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *currentConfig()
			if cfg.Notify.TokenSecret != "" {
				cfg.Notify.TokenSecret = redacted
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the user config file path",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
