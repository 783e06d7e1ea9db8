package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "ragingest.log" {
		t.Errorf("DefaultLogPath should end with ragingest.log, got: %s", path)
	}
	if !strings.Contains(path, ".ragingest") {
		t.Errorf("DefaultLogPath should live under .ragingest, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestSetup_FileOnly(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("batch_processed", "messages", 3)
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"batch_processed"`) {
		t.Errorf("expected JSON record in file, got: %s", content)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	cleanup()

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "quiet") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(string(content), "loud") {
		t.Error("warn record should be written")
	}
}

func TestSetup_NoFileStillLogs(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()
	if logger == nil {
		t.Fatal("Setup returned nil logger")
	}
}

func TestFanout_WithAttrsReachesEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	f := fanout{
		slogJSON(&a),
		slogJSON(&b),
	}
	h := f.WithAttrs(nil).WithGroup("g")
	if err := h.Handle(context.Background(), newRecord("hello")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(a.String(), "hello") || !strings.Contains(b.String(), "hello") {
		t.Errorf("both handlers should receive the record: %q %q", a.String(), b.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
	}

	for _, tc := range tests {
		if got := LevelFromString(tc.input).String(); got != tc.expected {
			t.Errorf("LevelFromString(%q) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestFindLogFile(t *testing.T) {
	if _, err := FindLogFile("/nonexistent/path/to/log.log"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, []byte("test"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	found, err := FindLogFile(logPath)
	if err != nil || found != logPath {
		t.Errorf("FindLogFile(%s) = %s, %v", logPath, found, err)
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// 0 MB rotates before every write.
	w, err := NewRotatingWriter(logPath, 0, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 2; i++ {
		if _, err := w.Write(bytes.Repeat([]byte("x"), 2048)); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for _, p := range []string{logPath, logPath + ".1"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should exist: %v", p, err)
		}
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")

	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, _ = w.Write([]byte(fmt.Sprintf("line %d\n", i)))
	}

	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Errorf(".2 should exist: %v", err)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("rotated file .3 should not exist (beyond maxFiles)")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("write after close should fail")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.SetImmediateSync(false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%d,"iter":%d}`+"\n", id, j)))
			}
		}(i)
	}
	wg.Wait()
	_ = w.Sync()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if got := strings.Count(string(content), "\n"); got != 1000 {
		t.Errorf("expected 1000 lines, got %d", got)
	}
}

const sampleLog = `{"time":"2026-01-02T10:00:00.000Z","level":"DEBUG","msg":"object_created","key":"a.txt"}
{"time":"2026-01-02T10:00:01.000Z","level":"INFO","msg":"batch_processed","messages":2,"acknowledged":2}
not json at all
{"time":"2026-01-02T10:00:02.000Z","level":"ERROR","msg":"operator_alert","error_code":"ERR_509_INCONSISTENT_STATE"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatalf("failed to write sample: %v", err)
	}
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].IsValid {
		t.Error("the raw line should be kept but marked invalid")
	}
	if entries[1].Msg != "operator_alert" {
		t.Errorf("expected operator_alert last, got %s", entries[1].Msg)
	}
}

func TestViewer_TailFilters(t *testing.T) {
	path := writeSample(t)

	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, &bytes.Buffer{})
	entries, err := v.Tail(path, 100)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	for _, e := range entries {
		if e.Level == "DEBUG" {
			t.Error("debug entry should be filtered")
		}
	}

	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile("ERR_509")}, &bytes.Buffer{})
	entries, _ = v.Tail(path, 100)
	if len(entries) != 1 || entries[0].Msg != "operator_alert" {
		t.Errorf("pattern filter returned %+v", entries)
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	path := writeSample(t)
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	entries, _ := v.Tail(path, 100)
	v.Print(entries)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), out.String())
	}
	want := "10:00:01.000 INFO  batch_processed acknowledged=2 messages=2"
	if lines[1] != want {
		t.Errorf("got %q, want %q", lines[1], want)
	}
	if lines[2] != "not json at all" {
		t.Errorf("raw line should pass through, got %q", lines[2])
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeSample(t)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"poller_stopped"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "poller_stopped" {
			t.Errorf("expected only appended entries, got %s", e.Msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for followed entry")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
