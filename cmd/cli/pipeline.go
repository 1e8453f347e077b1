package cli

import (
	"context"
	"fmt"

	"github.com/anstrom/scanvault/internal/api"
	"github.com/anstrom/scanvault/internal/archive"
	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/services"
	"github.com/anstrom/scanvault/internal/storage"
	"github.com/anstrom/scanvault/internal/workers"
)

// pipeline holds the components every ingest path shares.
type pipeline struct {
	store   storage.Store
	pool    *workers.Pool
	archive *archive.Archive
	ingest  *services.IngestService
}

// newPipeline connects the store and archive and starts the worker pool.
func newPipeline(ctx context.Context, cfg *config.Config, migrate bool) (*pipeline, error) {
	backend, err := openStore(ctx, cfg, migrate)
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		store: storage.WithMetrics(backend, cfg.Storage.Backend, metrics.GetGlobalMetrics()),
	}

	var archiver services.Archiver
	if cfg.Archive.Enabled {
		p.archive, err = archive.New(ctx, cfg.Archive)
		if err != nil {
			_ = p.store.Close()
			return nil, fmt.Errorf("error connecting to archive: %w", err)
		}
		archiver = p.archive
	}

	p.pool = workers.New(cfg.WorkerConfig())
	p.pool.Start()
	p.ingest = services.NewIngestService(p.store, p.pool, archiver, cfg.Ingest.Config)
	return p, nil
}

// apiArchive returns the archive as the API sees it, nil when disabled.
func (p *pipeline) apiArchive() api.Archive {
	if p.archive == nil {
		return nil
	}
	return p.archive
}

// Close drains the worker pool and closes the store.
func (p *pipeline) Close() error {
	if err := p.pool.Shutdown(); err != nil {
		logging.Warn("Worker pool shutdown failed", "error", err)
	}
	return p.store.Close()
}
