// Package config loads ragingest.yaml.
//
// Precedence, lowest first: built-in defaults, the user file
// (~/.config/ragingest/config.yaml), the project file (ragingest.yaml in the
// working directory, or the path given with --config), then RAGINGEST_*
// environment variables.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragingest/internal/errors"
)

// FileName is the project config file looked up in the working directory.
const FileName = "ragingest.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGINGEST_"

// MinTokenSecretBytes is the shortest accepted notify.token_secret.
const MinTokenSecretBytes = 32

// Config is the complete service configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Notify     NotifyConfig     `yaml:"notify" json:"notify"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// QueueConfig configures the change notification queue and the poll loop.
type QueueConfig struct {
	// DSN selects the backend: memory://, sqlite:///path or postgres://...
	DSN string `yaml:"dsn" json:"dsn"`
	// BatchSize is the most messages received per poll.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// VisibilityTimeout hides a received message before redelivery.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" json:"visibility_timeout"`
	// MaxReceives is the delivery count after which a message is
	// dead-lettered. Zero disables dead-lettering.
	MaxReceives  int           `yaml:"max_receives" json:"max_receives"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// AckRetries is the number of retries for a failed acknowledgement.
	AckRetries int `yaml:"ack_retries" json:"ack_retries"`
}

// RegistryConfig configures the dedup registry.
type RegistryConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// StorageConfig configures the filesystem object store.
type StorageConfig struct {
	// Root holds one folder per bucket.
	Root string `yaml:"root" json:"root"`
	// MaxObjectBytes caps the size of an object read for ingestion.
	MaxObjectBytes int64 `yaml:"max_object_bytes" json:"max_object_bytes"`
}

// IndexConfig configures the per-owner index tables and the chunker.
type IndexConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
	// EmbeddingSize is the vector length every table enforces.
	EmbeddingSize int `yaml:"embedding_size" json:"embedding_size"`
	ChunkSize     int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// EmbedCacheSize bounds the embedding LRU. Negative disables it.
	EmbedCacheSize int `yaml:"embed_cache_size" json:"embed_cache_size"`
	// BatchSize is the number of chunks embedded per request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (default) or "ollama".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// NotifyConfig configures the websocket notification hub.
type NotifyConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	Path       string `yaml:"path" json:"path"`
	// OriginPatterns are the browser origins allowed to connect.
	OriginPatterns  []string      `yaml:"origin_patterns" json:"origin_patterns"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
	SendTimeout     time.Duration `yaml:"send_timeout" json:"send_timeout"`
	// TokenSecret signs and verifies the session tokens websocket clients
	// present. serve refuses to start without one.
	TokenSecret string `yaml:"token_secret,omitempty" json:"-"`
	// TokenTTL is the lifetime of tokens issued by the token command.
	TokenTTL time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// WatcherConfig configures the bucket watcher.
type WatcherConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling bool          `yaml:"force_polling" json:"force_polling"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the JSON log file. Empty means the default path; "-" disables it.
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults that run on one machine with
// embedded SQLite stores under DataDir.
func NewConfig() *Config {
	data := DataDir()
	return &Config{
		Version: 1,
		Queue: QueueConfig{
			DSN:               "sqlite://" + filepath.Join(data, "queue.db"),
			BatchSize:         10,
			VisibilityTimeout: 30 * time.Second,
			MaxReceives:       5,
			PollInterval:      time.Second,
			AckRetries:        3,
		},
		Registry: RegistryConfig{
			DSN: "sqlite://" + filepath.Join(data, "registry.db"),
		},
		Storage: StorageConfig{
			Root:           filepath.Join(data, "buckets"),
			MaxObjectBytes: 64 << 20,
		},
		Index: IndexConfig{
			DSN:            "sqlite://" + filepath.Join(data, "index.db"),
			EmbeddingSize:  256,
			ChunkSize:      1000,
			ChunkOverlap:   200,
			EmbedCacheSize: 4096,
			BatchSize:      32,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			OllamaHost: "http://localhost:11434",
			Timeout:    60 * time.Second,
		},
		Notify: NotifyConfig{
			ListenAddr:      "127.0.0.1:8787",
			Path:            "/ws",
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
			SendTimeout:     2 * time.Second,
			TokenTTL:        time.Hour,
		},
		Watcher: WatcherConfig{
			Debounce:     200 * time.Millisecond,
			PollInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DataDir returns $XDG_DATA_HOME/ragingest, or ~/.ragingest.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragingest")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragingest")
	}
	return filepath.Join(home, ".ragingest")
}

// GetUserConfigPath returns the user-wide configuration file:
// $XDG_CONFIG_HOME/ragingest/config.yaml or ~/.config/ragingest/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragingest", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragingest", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragingest", "config.yaml")
}

// Load builds the effective configuration. An explicit path must exist;
// with an empty path, ragingest.yaml in the working directory is used when
// present.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if user := GetUserConfigPath(); fileExists(user) {
		if err := cfg.loadYAML(user); err != nil {
			return nil, err
		}
	}

	switch {
	case path != "":
		if !fileExists(path) {
			return nil, errors.New(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), nil).
				WithDetail("hint", "run 'ragingest config init --path "+path+"' to create it")
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	case fileExists(FileName):
		if err := cfg.loadYAML(FileName); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path over c. Keys not present in the file keep their
// current value; unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound, "failed to read config file "+path, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.New(errors.ErrCodeConfigInvalid, "failed to parse config file "+path, err)
	}
	return nil
}

// applyEnvOverrides reads RAGINGEST_<SECTION>_<KEY> variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"QUEUE_DSN":           &c.Queue.DSN,
		"REGISTRY_DSN":        &c.Registry.DSN,
		"STORAGE_ROOT":        &c.Storage.Root,
		"INDEX_DSN":           &c.Index.DSN,
		"EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"NOTIFY_LISTEN_ADDR":  &c.Notify.ListenAddr,
		"NOTIFY_TOKEN_SECRET": &c.Notify.TokenSecret,
		"LOG_LEVEL":           &c.Logging.Level,
		"LOG_FILE":            &c.Logging.File,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"QUEUE_BATCH_SIZE":     &c.Queue.BatchSize,
		"QUEUE_MAX_RECEIVES":   &c.Queue.MaxReceives,
		"QUEUE_ACK_RETRIES":    &c.Queue.AckRetries,
		"INDEX_EMBEDDING_SIZE": &c.Index.EmbeddingSize,
		"INDEX_CHUNK_SIZE":     &c.Index.ChunkSize,
		"INDEX_CHUNK_OVERLAP":  &c.Index.ChunkOverlap,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError(key, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"QUEUE_VISIBILITY_TIMEOUT": &c.Queue.VisibilityTimeout,
		"QUEUE_POLL_INTERVAL":      &c.Queue.PollInterval,
		"WATCHER_DEBOUNCE":         &c.Watcher.Debounce,
		"NOTIFY_TOKEN_TTL":         &c.Notify.TokenTTL,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return envError(key, v, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(EnvPrefix + "STORAGE_MAX_OBJECT_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return envError("STORAGE_MAX_OBJECT_BYTES", v, err)
		}
		c.Storage.MaxObjectBytes = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "WATCHER_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return envError("WATCHER_ENABLED", v, err)
		}
		c.Watcher.Enabled = b
	}
	return nil
}

func envError(key, value string, cause error) error {
	return errors.New(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("invalid value %q for %s%s", value, EnvPrefix, key), cause)
}

// Validate reports the first invalid setting as ERR_102_CONFIG_INVALID.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Queue.BatchSize > 0, "queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	check(c.Queue.VisibilityTimeout > 0, "queue.visibility_timeout must be positive, got %s", c.Queue.VisibilityTimeout)
	check(c.Queue.MaxReceives >= 0, "queue.max_receives must be non-negative, got %d", c.Queue.MaxReceives)
	check(c.Queue.PollInterval > 0, "queue.poll_interval must be positive, got %s", c.Queue.PollInterval)
	check(c.Queue.AckRetries >= 0, "queue.ack_retries must be non-negative, got %d", c.Queue.AckRetries)

	check(c.Storage.Root != "", "storage.root must be set")
	check(c.Storage.MaxObjectBytes > 0, "storage.max_object_bytes must be positive, got %d", c.Storage.MaxObjectBytes)

	check(c.Index.EmbeddingSize > 0, "index.embedding_size must be positive, got %d", c.Index.EmbeddingSize)
	check(c.Index.ChunkSize > 0, "index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	check(c.Index.ChunkOverlap >= 0 && c.Index.ChunkOverlap < c.Index.ChunkSize,
		"index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	check(c.Index.BatchSize > 0, "index.batch_size must be positive, got %d", c.Index.BatchSize)

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider))
	}

	check(c.Notify.ListenAddr != "", "notify.listen_addr must be set")
	check(strings.HasPrefix(c.Notify.Path, "/"), "notify.path must start with '/', got %q", c.Notify.Path)
	check(c.Notify.BreakerFailures > 0, "notify.breaker_failures must be positive, got %d", c.Notify.BreakerFailures)
	check(c.Notify.SendTimeout > 0, "notify.send_timeout must be positive, got %s", c.Notify.SendTimeout)
	check(c.Notify.TokenSecret == "" || len(c.Notify.TokenSecret) >= MinTokenSecretBytes,
		"notify.token_secret must be at least %d bytes", MinTokenSecretBytes)
	check(c.Notify.TokenTTL > 0, "notify.token_ttl must be positive, got %s", c.Notify.TokenTTL)

	check(c.Watcher.Debounce > 0, "watcher.debounce must be positive, got %s", c.Watcher.Debounce)

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	err := errors.New(errors.ErrCodeConfigInvalid, "invalid configuration: "+problems[0], nil)
	if len(problems) > 1 {
		err = err.WithDetail("other_problems", strconv.Itoa(len(problems)-1))
	}
	return err
}

// WriteYAML writes the configuration to path, creating its folder.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
