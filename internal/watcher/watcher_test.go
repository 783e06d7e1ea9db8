package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{DebounceWindow: time.Second}.WithDefaults()

	assert.Equal(t, time.Second, o.DebounceWindow)
	assert.Equal(t, 5*time.Second, o.PollInterval)
	assert.Equal(t, 100, o.EventBufferSize)
}

func TestIgnored(t *testing.T) {
	tests := map[string]bool{
		"uploads/private/u/doc.pdf":      false,
		"uploads/private/u/.doc.pdf.tmp": true,
		"uploads/.staging/u/doc.pdf":     true,
		"uploads/private/u/doc.pdf~":     true,
		"uploads/private/u/doc.pdf.part": true,
		".":                              true,
	}
	for path, want := range tests {
		assert.Equal(t, want, ignored(path), path)
	}
}
