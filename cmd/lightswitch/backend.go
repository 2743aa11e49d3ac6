package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/lightswitch/migrations"

	"github.com/nerrad567/lightswitch/internal/infrastructure/config"
	"github.com/nerrad567/lightswitch/internal/infrastructure/database"
	"github.com/nerrad567/lightswitch/internal/infrastructure/firebase"
	"github.com/nerrad567/lightswitch/internal/infrastructure/logging"
	"github.com/nerrad567/lightswitch/internal/state"
)

// backend is the opened state tree plus whatever owns its resources.
type backend struct {
	tree state.Tree

	// cause explains a nil tree. The store then reports not configured on
	// every request instead of the process refusing to start.
	cause error

	db *database.DB
}

// openBackend opens the tree for cfg.Store.Backend.
//
// Firebase configuration problems (missing URL, missing or malformed key)
// do not fail startup; they yield a backend with a nil tree. SQLite open
// and migration failures are returned.
func openBackend(ctx context.Context, cfg *config.Config, log *logging.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendFirebase:
		client, err := firebase.Connect(ctx, cfg.Firebase, cfg.GetFirebaseTimeout())
		if err != nil {
			log.Warn("firebase not configured, state requests will fail", "error", err)
			return &backend{cause: err}, nil
		}
		log.Info("firebase client ready", "database_url", cfg.Firebase.DatabaseURL)
		return &backend{tree: client}, nil

	case config.BackendSQLite:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database connected", "path", db.Path())
		return &backend{tree: state.NewSQLiteTree(db.DB), db: db}, nil

	case config.BackendMemory:
		log.Warn("memory backend selected, state is lost on restart")
		return &backend{tree: state.NewMemoryTree()}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newStore wraps the tree in a Store, or an unconfigured Store when there
// is no tree.
func (b *backend) newStore(catalog state.Catalog, opts state.Options) *state.Store {
	if b.tree == nil {
		return state.NewUnconfiguredStore(catalog, b.cause, opts)
	}
	return state.NewStore(b.tree, catalog, opts)
}

// Close releases the database, if any.
func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
