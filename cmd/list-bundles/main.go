package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/repository/postgres"
)

func main() {
	storeFlag := flag.String("store", "", "Store ID (UUID)")
	limitFlag := flag.Int("limit", 50, "Maximum number of bundles to list")
	flag.Parse()

	if *storeFlag == "" {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/list-bundles/main.go --store <store-uuid> [--limit 50]")
		os.Exit(1)
	}

	storeID, err := uuid.Parse(*storeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid store ID: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	bundles, err := repos.Bundle.ListByStoreID(context.Background(), storeID, *limitFlag, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list bundles: %v\n", err)
		os.Exit(1)
	}

	if len(bundles) == 0 {
		fmt.Println("No bundles found for this store.")
		return
	}

	fmt.Printf("%-36s  %-8s  %-25s  %s\n", "ID", "STATUS", "NAME", "COMPONENTS")
	for _, b := range bundles {
		fmt.Printf("%-36s  %-8s  %-25s  %d\n", b.ID, b.Status, b.Name, len(b.Components))
	}
	fmt.Printf("\n%d bundle(s)\n", len(bundles))
}
