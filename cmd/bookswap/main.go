package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"bookswap/internal/config"
	"bookswap/internal/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	if err := newRootCmd(config.Load()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "bookswap",
		Short:        "Book exchange service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.DatabaseDriver, "db-driver", cfg.DatabaseDriver, "database driver (postgres or sqlite3)")
	root.PersistentFlags().StringVar(&cfg.DatabaseURL, "db-url", cfg.DatabaseURL, "database connection string")

	root.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newAddUserCmd(cfg),
		newChaosCmd(cfg),
	)
	return root
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Printf("Schema is up to date (%s)", db.Dialect())
			return nil
		},
	}
}

// openDB connects and migrates.
func openDB(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}
