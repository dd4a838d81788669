package cmd

import (
	"fmt"

	"dispenser-sync/core/config"
	"dispenser-sync/core/database"
	"dispenser-sync/core/storage"
	"dispenser-sync/core/store"
	"dispenser-sync/core/store/memory"

	"go.uber.org/zap"
)

// liveStores are the configured production backends.
type liveStores struct {
	docs   *store.GormDocumentStore
	rt     *store.ObjectRealtimeStore
	client storage.Client
}

func openLiveStores(cfg *config.Config, l *zap.Logger) (*liveStores, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	docs, err := store.NewGormDocumentStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare document store: %w", err)
	}

	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	rt := store.NewObjectRealtimeStore(client, cfg.Storage.Bucket, cfg.Storage.RealtimePrefix)

	l.Info("Stores opened",
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("realtime", rt.String()),
	)
	return &liveStores{docs: docs, rt: rt, client: client}, nil
}

// openStores returns in-memory stores loaded from fixturePath when it is
// set, otherwise the configured backends.
func openStores(cfg *config.Config, fixturePath string, l *zap.Logger) (store.DocumentStore, store.RealtimeStore, error) {
	if fixturePath != "" {
		f, err := memory.LoadFixtureFile(fixturePath)
		if err != nil {
			return nil, nil, err
		}
		docs, rt := f.Stores()
		l.Info("Using fixture stores", zap.String("fixture", fixturePath))
		return docs, rt, nil
	}

	live, err := openLiveStores(cfg, l)
	if err != nil {
		return nil, nil, err
	}
	return live.docs, live.rt, nil
}
