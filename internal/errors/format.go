package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var pe *PipelineError
	if !stderrors.As(err, &pe) {
		pe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", pe.Message))
	if pe.Cause != nil && pe.Cause.Error() != pe.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", pe.Cause))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", pe.Code))

	return sb.String()
}

// LogAttrs returns slog attributes describing err.
// Details are emitted in key order so log lines are stable.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if !stderrors.As(err, &pe) {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error", pe.Error()),
		slog.String("error_code", pe.Code),
		slog.String("severity", string(pe.Severity)),
		slog.Bool("retryable", pe.Retryable),
	}

	keys := make([]string, 0, len(pe.Details))
	for k := range pe.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, pe.Details[k]))
	}

	return attrs
}
