// Package bootstrap opens the ledger backend selected by configuration. It is
// shared by the server and the operator tooling under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"posinet/backend/internal/config"
	"posinet/backend/internal/store"
	"posinet/backend/internal/store/memory"
	mongostore "posinet/backend/internal/store/mongo"
	pgstore "posinet/backend/internal/store/postgres"
)

// OpenRepository connects to the configured backend and returns it with a
// close function. A requested database that cannot be reached is an error;
// there is no silent fallback to the in-memory store.
func OpenRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, nil, err
	}

	switch backend {
	case config.BackendPostgres:
		if cfg.DBMigrate {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		log.Println("repository: postgres")
		return pg, pg.Close, nil
	case config.BackendMongo:
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo unavailable: %w", err)
		}
		log.Println("repository: mongo")
		return mg, mg.Close, nil
	default:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), func() error { return nil }, nil
	}
}
