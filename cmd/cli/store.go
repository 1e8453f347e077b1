package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/db"
	"github.com/anstrom/scanvault/internal/docstore"
	"github.com/anstrom/scanvault/internal/storage"
)

// StoreOperation represents a function that operates on an open store.
type StoreOperation func(ctx context.Context, store storage.Store) error

// openStore connects to the configured backend. PostgreSQL schemas are
// migrated when migrate is set.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		connect := db.Connect
		if migrate {
			connect = db.ConnectAndMigrate
		}
		database, err := connect(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("error connecting to database: %w", err)
		}
		return db.NewStore(database), nil
	case config.BackendMongo:
		store, err := docstore.Connect(ctx, cfg.Storage.Mongo)
		if err != nil {
			return nil, fmt.Errorf("error connecting to mongodb: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// withStore executes operation against the configured store and closes it
// afterwards.
func withStore(ctx context.Context, operation StoreOperation) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", closeErr)
		}
	}()

	return operation(ctx, store)
}
