package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanvault/internal/api"
	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/spool"
)

const (
	startupTimeout        = 30 * time.Second
	systemMetricsInterval = 15 * time.Second
)

// serveCmd runs the long-lived ingest service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and spool importer",
	Long: `Run scanvault as a service. Depending on the configuration this serves
the REST and JSON-RPC API, imports reports dropped into the spool
directory and archives raw reports. PostgreSQL schemas are migrated
on startup. The log level follows changes to the configuration file.`,
	Example: `  scanvault serve
  scanvault serve --config /etc/scanvault/scanvault.yaml
  scanvault serve --listen 0.0.0.0 --port 9090 --spool /var/spool/scanvault`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Override the API listen address")
	serveCmd.Flags().Int("port", 0, "Override the API port")
	serveCmd.Flags().String("spool", "", "Override the spool directory")
	serveCmd.Flags().Bool("no-api", false, "Disable the API server")

	if err := bindFlags(serveCmd.Flags(), map[string]string{
		"listen": "api.listen_addr",
		"port":   "api.port",
		"spool":  "spool.directory",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noAPI, _ := cmd.Flags().GetBool("no-api"); noAPI {
		cfg.API.Enabled = false
	}
	if !cfg.API.Enabled && !cfg.Spool.Enabled {
		return fmt.Errorf("nothing to serve: enable api or spool")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve starts every enabled component and blocks until ctx is done or the
// API server fails. Components stop in reverse order of startup.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Default().WithComponent("serve")
	m := metrics.GetGlobalMetrics()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	p, err := newPipeline(startCtx, cfg, cfg.Storage.Backend == config.BackendPostgres)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Warn("Failed to close store", "error", closeErr)
		}
	}()

	go m.StartPeriodicUpdates(ctx, systemMetricsInterval)
	stopWatcher := watchConfig(cfg, logger)
	defer stopWatcher()

	if cfg.Spool.Enabled {
		sp, err := spool.New(cfg.Spool, p.ingest)
		if err != nil {
			return err
		}
		if err := sp.Start(); err != nil {
			return err
		}
		defer sp.Stop()
	}

	logger.Info("Scanvault started",
		"version", version,
		"backend", cfg.Storage.Backend,
		"archive", cfg.Archive.Enabled,
		"spool", cfg.Spool.Enabled,
		"api", cfg.API.Enabled)

	if !cfg.API.Enabled {
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	}

	server, err := api.New(cfg.API, api.Dependencies{
		Store:   p.store,
		Ingest:  p.ingest,
		Archive: p.apiArchive(),
		Metrics: m,
		Logger:  logging.Default(),
		Version: version,
	})
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

// watchConfig applies log level changes from the configuration file.
// A file that cannot be watched only disables reloading.
func watchConfig(cfg *config.Config, logger *logging.Logger) func() {
	watcher, err := config.NewWatcher(getConfigFilePath(), cfg)
	if err != nil {
		logger.Warn("Configuration reload disabled", "error", err)
		return func() {}
	}
	watcher.SetLoader(loadConfigFrom)
	watcher.OnChange(config.LogLevelCallback(logging.Default()))
	watcher.Start()

	return func() {
		if err := watcher.Stop(); err != nil {
			logger.Debug("Config watcher stop failed", "error", err)
		}
	}
}
