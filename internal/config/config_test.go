package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragingest/internal/errors"
)

// isolate points the user config and data dirs at a temp folder and runs the
// test from an empty working directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	work := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	t.Chdir(work)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	dir := isolate(t)

	cfg := NewConfig()

	data := filepath.Join(dir, "data", "ragingest")
	assert.Equal(t, "sqlite://"+filepath.Join(data, "queue.db"), cfg.Queue.DSN)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 5, cfg.Queue.MaxReceives)
	assert.Equal(t, 3, cfg.Queue.AckRetries)
	assert.Equal(t, filepath.Join(data, "buckets"), cfg.Storage.Root)
	assert.Equal(t, int64(64<<20), cfg.Storage.MaxObjectBytes)
	assert.Equal(t, 256, cfg.Index.EmbeddingSize)
	assert.Equal(t, 1000, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "/ws", cfg.Notify.Path)
	assert.Equal(t, 2*time.Second, cfg.Notify.SendTimeout)
	assert.False(t, cfg.Watcher.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	writeFile(t, FileName, `
queue:
  dsn: memory://
  visibility_timeout: 45s
index:
  chunk_size: 500
  chunk_overlap: 50
`)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Queue.DSN)
	assert.Equal(t, 45*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap)
	assert.Equal(t, 10, cfg.Queue.BatchSize, "keys absent from the file keep defaults")
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config", "ragingest", "config.yaml"), `
registry:
  dsn: postgres://user-level
logging:
  level: debug
`)
	explicit := filepath.Join(dir, "custom.yaml")
	writeFile(t, explicit, `
registry:
  dsn: postgres://project-level
`)
	t.Setenv("RAGINGEST_LOG_LEVEL", "warn")

	cfg, err := Load(explicit)

	require.NoError(t, err)
	assert.Equal(t, "postgres://project-level", cfg.Registry.DSN, "project beats user")
	assert.Equal(t, "warn", cfg.Logging.Level, "env beats files")
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolate(t)

	_, err := Load("does-not-exist.yaml")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetCode(err))
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	isolate(t)
	writeFile(t, FileName, "queue:\n  batchsize: 3\n")

	_, err := Load("")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_EmptyFileIsFine(t *testing.T) {
	isolate(t)
	writeFile(t, FileName, "")

	_, err := Load("")
	require.NoError(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RAGINGEST_QUEUE_DSN", "memory://")
	t.Setenv("RAGINGEST_QUEUE_BATCH_SIZE", "4")
	t.Setenv("RAGINGEST_QUEUE_POLL_INTERVAL", "250ms")
	t.Setenv("RAGINGEST_STORAGE_MAX_OBJECT_BYTES", "1024")
	t.Setenv("RAGINGEST_WATCHER_ENABLED", "true")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Queue.DSN)
	assert.Equal(t, 4, cfg.Queue.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval)
	assert.Equal(t, int64(1024), cfg.Storage.MaxObjectBytes)
	assert.True(t, cfg.Watcher.Enabled)
}

func TestLoad_BadEnvValue(t *testing.T) {
	for key, value := range map[string]string{
		"RAGINGEST_QUEUE_BATCH_SIZE":         "many",
		"RAGINGEST_QUEUE_POLL_INTERVAL":      "soon",
		"RAGINGEST_WATCHER_ENABLED":          "perhaps",
		"RAGINGEST_STORAGE_MAX_OBJECT_BYTES": "big",
	} {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, value)

			_, err := Load("")

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero batch", func(c *Config) { c.Queue.BatchSize = 0 }, "queue.batch_size"},
		{"negative receives", func(c *Config) { c.Queue.MaxReceives = -1 }, "queue.max_receives"},
		{"overlap equals size", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }, "index.chunk_overlap"},
		{"negative overlap", func(c *Config) { c.Index.ChunkOverlap = -1 }, "index.chunk_overlap"},
		{"zero dims", func(c *Config) { c.Index.EmbeddingSize = 0 }, "index.embedding_size"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"relative hub path", func(c *Config) { c.Notify.Path = "ws" }, "notify.path"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"no storage root", func(c *Config) { c.Storage.Root = "" }, "storage.root"},
		{"short token secret", func(c *Config) { c.Notify.TokenSecret = "short" }, "notify.token_secret"},
		{"zero token ttl", func(c *Config) { c.Notify.TokenTTL = 0 }, "notify.token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestValidate_ZeroMaxReceivesAllowed(t *testing.T) {
	cfg := NewConfig()
	cfg.Queue.MaxReceives = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TokenSecretFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("RAGINGEST_NOTIFY_TOKEN_SECRET", strings.Repeat("s", MinTokenSecretBytes))
	t.Setenv("RAGINGEST_NOTIFY_TOKEN_TTL", "15m")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("s", MinTokenSecretBytes), cfg.Notify.TokenSecret)
	assert.Equal(t, 15*time.Minute, cfg.Notify.TokenTTL)
}

func TestWriteYAML_LoadsBack(t *testing.T) {
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Queue.DSN = "memory://"
	cfg.Notify.OriginPatterns = []string{"app.example.com"}
	cfg.Watcher.Debounce = 750 * time.Millisecond

	path := filepath.Join(dir, "out", "ragingest.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
