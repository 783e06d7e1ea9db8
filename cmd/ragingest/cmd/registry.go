package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/output"
	"github.com/Aman-CERP/ragingest/internal/registry"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the dedup registry",
		Long: `Inspect the dedup registry, which maps each content fingerprint to the
owner and storage path it was first indexed from.`,
		Example: `  ragingest registry lookup s3://docs/private/alice/report.pdf
  ragingest registry exists 3f2a...
  ragingest registry list alice --json`,
	}

	cmd.AddCommand(newRegistryLookupCmd())
	cmd.AddCommand(newRegistryExistsCmd())
	cmd.AddCommand(newRegistryListCmd())

	return cmd
}

func newRegistryLookupCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "lookup <storage-path>",
		Short: "Show the entries registered at a storage path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []registry.Entry
			err := withRegistry(cmd.Context(), func(reg registry.Registry) error {
				var err error
				entries, err = reg.ListByPath(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			return printEntries(cmd, entries, jsonOutput, "Nothing registered at "+args[0])
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newRegistryExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <fingerprint>",
		Short: "Report whether a fingerprint is registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found bool
			err := withRegistry(cmd.Context(), func(reg registry.Registry) error {
				var err error
				found, err = reg.Exists(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), found)
			return err
		},
	}
}

func newRegistryListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [owner]",
		Short: "List registry entries, optionally for one owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := ""
			if len(args) == 1 {
				owner = args[0]
			}
			var entries []registry.Entry
			err := withRegistry(cmd.Context(), func(reg registry.Registry) error {
				var err error
				entries, err = reg.List(cmd.Context(), owner)
				return err
			})
			if err != nil {
				return err
			}
			return printEntries(cmd, entries, jsonOutput, "Registry is empty")
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func withRegistry(ctx context.Context, fn func(registry.Registry) error) error {
	reg, err := registry.Open(ctx, currentConfig().Registry.DSN)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()
	return fn(reg)
}

func printEntries(cmd *cobra.Command, entries []registry.Entry, jsonOutput bool, empty string) error {
	if jsonOutput {
		if entries == nil {
			entries = []registry.Entry{}
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	}

	out := output.New(cmd.OutOrStdout())
	if len(entries) == 0 {
		out.Status("📭", empty)
		return nil
	}
	for i, e := range entries {
		if i > 0 {
			out.Newline()
		}
		out.Fields("Fingerprint", e.Fingerprint, "Owner", e.Owner, "Path", e.StoragePath)
	}
	return nil
}
