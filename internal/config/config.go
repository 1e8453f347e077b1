// Package config loads the scanvault configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anstrom/scanvault/internal/archive"
	"github.com/anstrom/scanvault/internal/db"
	"github.com/anstrom/scanvault/internal/docstore"
	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/services"
	"github.com/anstrom/scanvault/internal/spool"
	"github.com/anstrom/scanvault/internal/workers"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config represents the complete configuration.
type Config struct {
	// Database configures the PostgreSQL backend.
	Database db.Config `yaml:"database" json:"database"`

	// Storage selects the backend scans are stored in.
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Archive configures raw report retention in object storage.
	Archive archive.Config `yaml:"archive" json:"archive"`

	// Ingest bounds report parsing.
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`

	// Spool configures the directory importer.
	Spool spool.Config `yaml:"spool" json:"spool"`

	// API configures the HTTP and JSON-RPC server.
	API APIConfig `yaml:"api" json:"api"`

	// Logging configures log output.
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string          `yaml:"backend" json:"backend"`
	Mongo   docstore.Config `yaml:"mongo" json:"mongo"`
}

// IngestConfig holds worker pool and parsing limits.
type IngestConfig struct {
	WorkerPoolSize  int           `yaml:"worker_pool_size" json:"worker_pool_size"`
	QueueSize       int           `yaml:"queue_size" json:"queue_size"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RateLimit       int           `yaml:"rate_limit" json:"rate_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	services.Config `yaml:",inline"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr"`
	Port           int           `yaml:"port" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size" json:"max_request_size"`
	CORS           CORSConfig    `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	pool := workers.DefaultConfig()
	return &Config{
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Backend: BackendPostgres,
			Mongo:   docstore.DefaultConfig(),
		},
		Archive: archive.DefaultConfig(),
		Ingest: IngestConfig{
			WorkerPoolSize:  pool.Size,
			QueueSize:       pool.QueueSize,
			MaxRetries:      pool.MaxRetries,
			RetryDelay:      pool.RetryDelay,
			RateLimit:       pool.RateLimit,
			ShutdownTimeout: pool.ShutdownTimeout,
			Config:          services.DefaultConfig(),
		},
		Spool: spool.DefaultConfig(),
		API: APIConfig{
			Enabled:        true,
			ListenAddr:     "127.0.0.1",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    2 * time.Minute,
			MaxRequestSize: 64 << 20,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a YAML (or JSON) file over the defaults and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Read is Load without validation, for callers that apply overrides first.
func Read(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeFilePermission, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config %s", filepath.Base(path)), err)
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the settings the selected components depend on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			return errors.ErrConfigMissing("database.host")
		}
		if c.Database.Database == "" {
			return errors.ErrConfigMissing("database.database")
		}
		if c.Database.Username == "" {
			return errors.ErrConfigMissing("database.username")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.ErrConfigMissing("storage.mongo.uri")
		}
		if c.Storage.Mongo.Database == "" {
			return errors.ErrConfigMissing("storage.mongo.database")
		}
	default:
		return errors.ErrConfigInvalid("storage.backend", c.Storage.Backend)
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return errors.ErrConfigMissing("archive.endpoint")
		}
		if c.Archive.Bucket == "" {
			return errors.ErrConfigMissing("archive.bucket")
		}
	}

	if c.Ingest.WorkerPoolSize <= 0 {
		return errors.ErrConfigInvalid("ingest.worker_pool_size", c.Ingest.WorkerPoolSize)
	}
	if c.Ingest.QueueSize < 0 {
		return errors.ErrConfigInvalid("ingest.queue_size", c.Ingest.QueueSize)
	}
	if c.Ingest.MaxDocumentBytes < 0 {
		return errors.ErrConfigInvalid("ingest.max_document_bytes", c.Ingest.MaxDocumentBytes)
	}

	if c.Spool.Enabled && c.Spool.Directory == "" {
		return errors.ErrConfigMissing("spool.directory")
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return errors.ErrConfigInvalid("api.port", c.API.Port)
		}
		if c.API.ListenAddr == "" {
			return errors.ErrConfigMissing("api.listen_addr")
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.ErrConfigInvalid("logging.level", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.ErrConfigInvalid("logging.format", c.Logging.Format)
	}

	return nil
}

// WorkerConfig returns the worker pool settings.
func (c *Config) WorkerConfig() workers.Config {
	return workers.Config{
		Size:            c.Ingest.WorkerPoolSize,
		QueueSize:       c.Ingest.QueueSize,
		MaxRetries:      c.Ingest.MaxRetries,
		RetryDelay:      c.Ingest.RetryDelay,
		ShutdownTimeout: c.Ingest.ShutdownTimeout,
		RateLimit:       c.Ingest.RateLimit,
	}
}

// GetAPIAddress returns the full API address.
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}
