package cli

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/logging"
)

// override copies one viper key into the configuration when it is set by
// an environment variable or a changed flag.
type override struct {
	key   string
	apply func(cfg *config.Config, v *viper.Viper)
}

var overrides = []override{
	{"database.host", func(c *config.Config, v *viper.Viper) { c.Database.Host = v.GetString("database.host") }},
	{"database.port", func(c *config.Config, v *viper.Viper) { c.Database.Port = v.GetInt("database.port") }},
	{"database.database", func(c *config.Config, v *viper.Viper) { c.Database.Database = v.GetString("database.database") }},
	{"database.username", func(c *config.Config, v *viper.Viper) { c.Database.Username = v.GetString("database.username") }},
	{"database.password", func(c *config.Config, v *viper.Viper) { c.Database.Password = v.GetString("database.password") }},
	{"database.ssl_mode", func(c *config.Config, v *viper.Viper) { c.Database.SSLMode = v.GetString("database.ssl_mode") }},
	{"storage.backend", func(c *config.Config, v *viper.Viper) { c.Storage.Backend = v.GetString("storage.backend") }},
	{"storage.mongo.uri", func(c *config.Config, v *viper.Viper) { c.Storage.Mongo.URI = v.GetString("storage.mongo.uri") }},
	{"storage.mongo.database", func(c *config.Config, v *viper.Viper) {
		c.Storage.Mongo.Database = v.GetString("storage.mongo.database")
	}},
	{"archive.enabled", func(c *config.Config, v *viper.Viper) { c.Archive.Enabled = v.GetBool("archive.enabled") }},
	{"archive.endpoint", func(c *config.Config, v *viper.Viper) { c.Archive.Endpoint = v.GetString("archive.endpoint") }},
	{"archive.bucket", func(c *config.Config, v *viper.Viper) { c.Archive.Bucket = v.GetString("archive.bucket") }},
	{"archive.access_key", func(c *config.Config, v *viper.Viper) { c.Archive.AccessKey = v.GetString("archive.access_key") }},
	{"archive.secret_key", func(c *config.Config, v *viper.Viper) { c.Archive.SecretKey = v.GetString("archive.secret_key") }},
	{"ingest.worker_pool_size", func(c *config.Config, v *viper.Viper) {
		c.Ingest.WorkerPoolSize = v.GetInt("ingest.worker_pool_size")
	}},
	{"ingest.max_document_bytes", func(c *config.Config, v *viper.Viper) {
		c.Ingest.MaxDocumentBytes = v.GetInt64("ingest.max_document_bytes")
	}},
	{"spool.enabled", func(c *config.Config, v *viper.Viper) { c.Spool.Enabled = v.GetBool("spool.enabled") }},
	{"spool.directory", func(c *config.Config, v *viper.Viper) { c.Spool.Directory = v.GetString("spool.directory") }},
	{"spool.schedule", func(c *config.Config, v *viper.Viper) { c.Spool.Schedule = v.GetString("spool.schedule") }},
	{"api.enabled", func(c *config.Config, v *viper.Viper) { c.API.Enabled = v.GetBool("api.enabled") }},
	{"api.listen_addr", func(c *config.Config, v *viper.Viper) { c.API.ListenAddr = v.GetString("api.listen_addr") }},
	{"api.port", func(c *config.Config, v *viper.Viper) { c.API.Port = v.GetInt("api.port") }},
	{"logging.level", func(c *config.Config, v *viper.Viper) {
		c.Logging.Level = logging.LogLevel(v.GetString("logging.level"))
	}},
	{"logging.format", func(c *config.Config, v *viper.Viper) {
		c.Logging.Format = logging.LogFormat(v.GetString("logging.format"))
	}},
	{"logging.output", func(c *config.Config, v *viper.Viper) { c.Logging.Output = v.GetString("logging.output") }},
}

// applyOverrides layers environment variables and bound flags over cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(cfg, v)
		}
	}
}

// bindFlags binds command flags to configuration keys, keyed by flag name.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

// readConfig reads the configuration file and applies overrides without
// validating the result.
func readConfig() (*config.Config, error) {
	return readConfigFrom(getConfigFilePath())
}

func readConfigFrom(path string) (*config.Config, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, viper.GetViper())
	return cfg, nil
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	return loadConfigFrom(getConfigFilePath())
}

// loadConfigFrom is the config.LoadFunc used at startup and on reload.
func loadConfigFrom(path string) (*config.Config, error) {
	cfg, err := readConfigFrom(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
