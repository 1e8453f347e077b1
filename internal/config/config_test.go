package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
)

const validYAML = `
database:
  host: localhost
  port: 5432
  database: scanvault
  username: vault
  password: s3cret
ingest:
  worker_pool_size: 8
  max_document_bytes: 1048576
  parse_timeout: 15s
spool:
  enabled: true
  directory: /var/spool/scanvault
  schedule: "@every 30s"
logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scanvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, t.TempDir(), validYAML))
		require.NoError(t, err)

		assert.Equal(t, "scanvault", cfg.Database.Database)
		assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
		assert.Equal(t, 8, cfg.Ingest.WorkerPoolSize)
		assert.Equal(t, int64(1048576), cfg.Ingest.MaxDocumentBytes)
		assert.Equal(t, 15*time.Second, cfg.Ingest.ParseTimeout)
		assert.Equal(t, 64*1024, cfg.Ingest.ChunkSize)
		assert.Equal(t, "@every 30s", cfg.Spool.Schedule)
		assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
		assert.Equal(t, "127.0.0.1:8080", cfg.GetAPIAddress())
	})

	t.Run("json is accepted", func(t *testing.T) {
		content := `{"storage": {"backend": "mongo", "mongo": {"uri": "mongodb://db:27017", "database": "vault"}}}`
		path := filepath.Join(t.TempDir(), "scanvault.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendMongo, cfg.Storage.Backend)
		assert.Equal(t, "vault", cfg.Storage.Mongo.Database)
		assert.Equal(t, 10*time.Second, cfg.Storage.Mongo.Timeout)
	})

	t.Run("missing file reads as defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.yaml")
		cfg, err := Read(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)

		_, err = Load(path)
		assert.True(t, errors.IsCode(err, errors.CodeConfiguration), "defaults name no database")
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := Load(writeConfig(t, t.TempDir(), "database: [unclosed"))
		assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	})

	t.Run("validation error", func(t *testing.T) {
		_, err := Load(writeConfig(t, t.TempDir(), "database:\n  host: localhost\n"))
		assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.Database = "scanvault"
		cfg.Database.Username = "vault"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "unknown backend", modify: func(c *Config) { c.Storage.Backend = "sqlite" }, field: "storage.backend"},
		{name: "mongo without uri", modify: func(c *Config) {
			c.Storage.Backend = BackendMongo
			c.Storage.Mongo.URI = ""
		}, field: "storage.mongo.uri"},
		{name: "mongo ignores database section", modify: func(c *Config) {
			c.Storage.Backend = BackendMongo
			c.Database.Username = ""
		}},
		{name: "archive without bucket", modify: func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Bucket = ""
		}, field: "archive.bucket"},
		{name: "no workers", modify: func(c *Config) { c.Ingest.WorkerPoolSize = 0 }, field: "ingest.worker_pool_size"},
		{name: "negative size limit", modify: func(c *Config) { c.Ingest.MaxDocumentBytes = -1 }, field: "ingest.max_document_bytes"},
		{name: "spool without directory", modify: func(c *Config) {
			c.Spool.Enabled = true
			c.Spool.Directory = ""
		}, field: "spool.directory"},
		{name: "bad port", modify: func(c *Config) { c.API.Port = 70000 }, field: "api.port"},
		{name: "disabled api skips port", modify: func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}},
		{name: "bad log level", modify: func(c *Config) { c.Logging.Level = "verbose" }, field: "logging.level"},
		{name: "bad log format", modify: func(c *Config) { c.Logging.Format = "xml" }, field: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Database.Database = "scanvault"
	cfg.Database.Username = "vault"
	cfg.Spool.Enabled = true

	path := filepath.Join(t.TempDir(), "nested", "scanvault.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWorkerConfig(t *testing.T) {
	cfg := Default()
	cfg.Ingest.WorkerPoolSize = 3
	cfg.Ingest.RateLimit = 5

	wc := cfg.WorkerConfig()
	assert.Equal(t, 3, wc.Size)
	assert.Equal(t, 5, wc.RateLimit)
	assert.Equal(t, cfg.Ingest.QueueSize, wc.QueueSize)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML)
	initial, err := Load(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Level: logging.LevelInfo, Format: logging.FormatText}, &buf)

	w, err := NewWatcher(path, initial)
	require.NoError(t, err)
	w.reloadDelay = 20 * time.Millisecond

	var calls atomic.Int32
	w.OnChange(func(_, _ *Config) error {
		calls.Add(1)
		return nil
	})
	w.OnChange(LogLevelCallback(logger))
	w.Start()
	defer func() { _ = w.Stop() }()

	t.Run("reloads on write", func(t *testing.T) {
		updated := bytes.Replace([]byte(validYAML), []byte("level: debug"), []byte("level: error"), 1)
		require.NoError(t, os.WriteFile(path, updated, 0o600))

		assert.Eventually(t, func() bool {
			return w.Config().Logging.Level == logging.LevelError
		}, 3*time.Second, 10*time.Millisecond)
		assert.GreaterOrEqual(t, calls.Load(), int32(1))
		assert.Equal(t, logging.ParseLevel("error"), logger.Level())
	})

	t.Run("invalid file keeps the previous config", func(t *testing.T) {
		time.Sleep(100 * time.Millisecond)
		before := calls.Load()
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), 0o600))

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, before, calls.Load())
		assert.Equal(t, BackendPostgres, w.Config().Storage.Backend)
	})

	t.Run("other files are ignored", func(t *testing.T) {
		before := calls.Load()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o600))

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, before, calls.Load())
	})
}

func TestWatcher_CustomLoader(t *testing.T) {
	dir := t.TempDir()
	// The file alone fails validation; the loader completes it.
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	complete := func(path string) (*Config, error) {
		cfg, err := Read(path)
		if err != nil {
			return nil, err
		}
		cfg.Database.Database = "scanvault"
		cfg.Database.Username = "vault"
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	initial, err := complete(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial)
	require.NoError(t, err)
	w.reloadDelay = 20 * time.Millisecond
	w.SetLoader(complete)
	w.Start()
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))
	assert.Eventually(t, func() bool {
		return w.Config().Logging.Level == logging.LevelWarn
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "scanvault", w.Config().Database.Database)
}
