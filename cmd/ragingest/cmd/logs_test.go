package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"poller_started","batch_size":10}
{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"ack_failed","message_id":"m-1"}
{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"inconsistent_state","error_code":"ERR_305_INCONSISTENT_STATE"}
{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"batch_processed","acknowledged":3}
`

func writeLog(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ragingest.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func TestLogs_TailsLastLines(t *testing.T) {
	path := writeLog(t, isolate(t))

	out, err := execute(t, "logs", "--file", path, "-n", "2")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "inconsistent_state")
	assert.Contains(t, lines[1], "batch_processed")
	assert.Contains(t, lines[1], "acknowledged=3")
}

func TestLogs_LevelFilter(t *testing.T) {
	path := writeLog(t, isolate(t))

	out, err := execute(t, "logs", "--file", path, "--level", "warn")

	require.NoError(t, err)
	assert.Contains(t, out, "ack_failed")
	assert.Contains(t, out, "inconsistent_state")
	assert.NotContains(t, out, "poller_started")
}

func TestLogs_Grep(t *testing.T) {
	path := writeLog(t, isolate(t))

	out, err := execute(t, "logs", "--file", path, "--grep", "ERR_30[0-9]")

	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "inconsistent_state")
}

func TestLogs_BadPattern(t *testing.T) {
	path := writeLog(t, isolate(t))

	_, err := execute(t, "logs", "--file", path, "--grep", "(")

	assert.ErrorContains(t, err, "invalid --grep pattern")
}

func TestLogs_NoFile(t *testing.T) {
	isolate(t)

	_, err := execute(t, "logs")

	assert.ErrorContains(t, err, "no log file found")
}
