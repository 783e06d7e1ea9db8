package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/ragingest/internal/registry"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanRows indicates index rows whose source has no registry entry.
	InconsistencyOrphanRows InconsistencyType = iota
	// InconsistencyMissingRows indicates a registry entry whose source has no index rows.
	InconsistencyMissingRows
)

// String returns the name used in reports.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanRows:
		return "orphan_rows"
	case InconsistencyMissingRows:
		return "missing_rows"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type as its name.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type        InconsistencyType `json:"type"`
	Owner       string            `json:"owner"`
	Source      string            `json:"source"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Details     string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Owners is the number of owners examined.
	Owners int `json:"owners"`
	// Entries is the number of registry entries examined.
	Entries int `json:"entries"`
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// SourceLister is the read side of store.TableStore.
type SourceLister interface {
	Owners(ctx context.Context) ([]string, error)
	Sources(ctx context.Context, owner string) ([]string, error)
}

// ConsistencyChecker compares the registry with the index tables.
// The registry is the source of truth for what should be indexed.
type ConsistencyChecker struct {
	registry registry.Registry
	tables   SourceLister
}

// NewConsistencyChecker creates a new checker.
func NewConsistencyChecker(reg registry.Registry, tables SourceLister) *ConsistencyChecker {
	return &ConsistencyChecker{registry: reg, tables: tables}
}

// Check reports orphan rows and missing rows for every owner known to
// either side.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	entries, err := c.registry.List(ctx, "")
	if err != nil {
		return nil, err
	}

	// owner -> source -> fingerprint
	registered := make(map[string]map[string]string)
	for _, e := range entries {
		if registered[e.Owner] == nil {
			registered[e.Owner] = make(map[string]string)
		}
		registered[e.Owner][e.StoragePath] = e.Fingerprint
	}

	tableOwners, err := c.tables.Owners(ctx)
	if err != nil {
		return nil, err
	}
	owners := make(map[string]bool, len(tableOwners)+len(registered))
	for _, o := range tableOwners {
		owners[o] = true
	}
	for o := range registered {
		owners[o] = true
	}

	ordered := make([]string, 0, len(owners))
	for o := range owners {
		ordered = append(ordered, o)
	}
	sort.Strings(ordered)

	var issues []Inconsistency
	for _, owner := range ordered {
		sources, err := c.tables.Sources(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to list sources for %s: %w", owner, err)
		}

		present := make(map[string]bool, len(sources))
		for _, src := range sources {
			present[src] = true
			if _, ok := registered[owner][src]; !ok {
				issues = append(issues, Inconsistency{
					Type:    InconsistencyOrphanRows,
					Owner:   owner,
					Source:  src,
					Details: "index rows without a registry entry",
				})
			}
		}

		paths := make([]string, 0, len(registered[owner]))
		for src := range registered[owner] {
			paths = append(paths, src)
		}
		sort.Strings(paths)
		for _, src := range paths {
			if !present[src] {
				issues = append(issues, Inconsistency{
					Type:        InconsistencyMissingRows,
					Owner:       owner,
					Source:      src,
					Fingerprint: registered[owner][src],
					Details:     "registry entry without index rows",
				})
			}
		}
	}

	if len(issues) > 0 {
		slog.Warn("index_inconsistent", slog.Int("issues", len(issues)), slog.Int("entries", len(entries)))
	}

	return &CheckResult{
		Owners:          len(ordered),
		Entries:         len(entries),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes what can be fixed without the original objects.
//   - Orphan rows: deleted.
//   - Missing rows: the registry entry is deleted, so the next upload of the
//     same content is indexed instead of skipped as a duplicate.
//
// Failures are logged and counted; Repair keeps going.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency, rows RowWriter) (repaired int) {
	for _, issue := range issues {
		var err error
		switch issue.Type {
		case InconsistencyOrphanRows:
			_, err = rows.DeleteBySource(ctx, issue.Owner, issue.Source)
		case InconsistencyMissingRows:
			err = c.registry.Delete(ctx, issue.Fingerprint, issue.Source)
		}
		if err != nil {
			slog.Warn("repair_failed",
				slog.String("type", issue.Type.String()),
				slog.String("owner", issue.Owner),
				slog.String("source", issue.Source),
				slog.String("error", err.Error()))
			continue
		}
		repaired++
	}
	if repaired > 0 {
		slog.Info("index_repaired", slog.Int("repaired", repaired), slog.Int("issues", len(issues)))
	}
	return repaired
}
