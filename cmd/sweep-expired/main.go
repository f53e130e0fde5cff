package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/repository/postgres"
	"github.com/jafarshop/bundles/internal/service"
)

// One-shot expiry sweep, for cron setups that run the server without the
// background loop.
func main() {
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
	sweeper := service.NewSweeperService(repos, logger)

	n, err := sweeper.SweepExpiredOnce(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Expired %d overdue promotion record(s)\n", n)
}
