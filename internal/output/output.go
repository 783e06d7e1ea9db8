// Package output formats human-readable CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints status lines and aligned fields.
// Write errors are ignored; this is console output.
type Writer struct {
	out io.Writer
}

// New creates a Writer printing to out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg after icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status("✅", msg) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

func (w *Writer) Error(msg string) { w.Status("❌", msg) }

func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Fields prints label/value pairs with the values aligned. pairs must have
// even length; a trailing label without a value is dropped.
func (w *Writer) Fields(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		if n := len(pairs[i]); n > width {
			width = n
		}
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		label := pairs[i] + ":"
		_, _ = fmt.Fprintf(w.out, "   %s%s %s\n", label, strings.Repeat(" ", width-len(pairs[i])), pairs[i+1])
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
