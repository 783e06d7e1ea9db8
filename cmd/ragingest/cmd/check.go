package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragingest/internal/config"
	"github.com/Aman-CERP/ragingest/internal/index"
	"github.com/Aman-CERP/ragingest/internal/output"
	"github.com/Aman-CERP/ragingest/internal/registry"
	"github.com/Aman-CERP/ragingest/internal/store"
)

// checkReport is the JSON output of the check command.
type checkReport struct {
	*index.CheckResult
	Repaired int `json:"repaired"`
}

func newCheckCmd() *cobra.Command {
	var (
		repair     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the registry with the index tables",
		Long: `Report index rows whose source has no registry entry (orphan_rows) and
registry entries whose source has no rows (missing_rows).

With --repair, orphan rows are deleted and registry entries without rows are
removed so the next upload of that content is indexed again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := runCheck(cmd.Context(), currentConfig(), repair)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printCheck(cmd, report, repair)
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Fix detected inconsistencies")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(ctx context.Context, cfg *config.Config, repair bool) (*checkReport, error) {
	reg, err := registry.Open(ctx, cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	tables, err := store.Open(ctx, cfg.Index.DSN, cfg.Index.EmbeddingSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = tables.Close() }()

	checker := index.NewConsistencyChecker(reg, tables)
	result, err := checker.Check(ctx)
	if err != nil {
		return nil, err
	}
	if result.Inconsistencies == nil {
		result.Inconsistencies = []index.Inconsistency{}
	}

	report := &checkReport{CheckResult: result}
	if repair && !result.Consistent() {
		report.Repaired = checker.Repair(ctx, result.Inconsistencies, tables)
	}
	return report, nil
}

func printCheck(cmd *cobra.Command, r *checkReport, repair bool) {
	out := output.New(cmd.OutOrStdout())
	if r.Consistent() {
		out.Successf("Registry and index agree (%d owner(s), %d entries)", r.Owners, r.Entries)
		return
	}

	out.Warningf("%d inconsistencies across %d owner(s)", len(r.Inconsistencies), r.Owners)
	for _, issue := range r.Inconsistencies {
		out.Statusf("", "%-12s %s %s: %s", issue.Type, issue.Owner, issue.Source, issue.Details)
	}
	out.Newline()
	if repair {
		out.Successf("Repaired %d of %d", r.Repaired, len(r.Inconsistencies))
	} else {
		out.Status("💡", "Run 'ragingest check --repair' to fix")
	}
}
