// Command createadmin provisions an operator account in the configured
// database backend.
//
//	go run ./cmd/createadmin -username owner -role admin
//
// The password is read from -password or, when empty, from the
// POSINET_OPERATOR_PASSWORD environment variable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"posinet/backend/internal/bootstrap"
	"posinet/backend/internal/config"
	"posinet/backend/internal/domain"
	"posinet/backend/internal/httpapi"
	"posinet/backend/internal/store"
)

func main() {
	username := flag.String("username", "", "operator username (at least 4 characters)")
	password := flag.String("password", "", "operator password (at least 8 characters)")
	role := flag.String("role", domain.RoleAdmin, "operator role: admin or cashier")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("POSINET_OPERATOR_PASSWORD")
	}

	cfg := config.Load()
	if err := run(cfg, *username, *password, *role); err != nil {
		log.Fatalf("createadmin: %v", err)
	}
	log.Printf("operator %q created with role %s", *username, *role)
}

func run(cfg config.Config, username, password, role string) error {
	backend, err := cfg.Backend()
	if err != nil {
		return err
	}
	if backend == config.BackendMemory {
		return errors.New("no database configured; set DATABASE_URL or MONGO_URI")
	}

	account, err := httpapi.NewOperatorAccount(username, password, role)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeRepo, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			log.Printf("close error: %v", err)
		}
	}()

	if err := repo.CreateUser(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("operator %q already exists", account.Username)
		}
		return err
	}
	return nil
}
