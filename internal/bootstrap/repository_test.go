package bootstrap

import (
	"context"
	"testing"

	"posinet/backend/internal/config"
)

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	repo, closeFn, err := OpenRepository(context.Background(), config.Config{StoreBackend: config.BackendAuto})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer closeFn()

	products, err := repo.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) == 0 {
		t.Fatalf("expected seeded catalog")
	}
}

func TestOpenRepositoryRejectsMisconfiguredBackend(t *testing.T) {
	for _, cfg := range []config.Config{
		{StoreBackend: config.BackendPostgres},
		{StoreBackend: config.BackendMongo},
		{StoreBackend: "sqlite"},
	} {
		if _, _, err := OpenRepository(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for backend %q", cfg.StoreBackend)
		}
	}
}
