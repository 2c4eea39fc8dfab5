// Command seed loads items from YAML into the reservo database and can take
// an immediate backup afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"reservo/internal/config"
	"reservo/internal/database"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		itemsPath  = flag.String("items", "configs/items.yaml", "path to items.yaml")
		dbPath     = flag.String("db", "./data/reservo.db", "path to sqlite db")
		backupPath = flag.String("backup-dir", "", "write a backup of the seeded db into this directory")
	)
	flag.Parse()

	items, err := config.LoadItems(*itemsPath)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no items in %s", *itemsPath)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.SeedItems(ctx, items); err != nil {
		return fmt.Errorf("seed items: %w", err)
	}
	logger.Info().Int("items", len(items)).Str("db", *dbPath).Msg("items seeded")

	if *backupPath == "" {
		return nil
	}
	backups := database.NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: *backupPath}, &logger)
	file, err := backups.Backup(ctx)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	logger.Info().Str("file", file).Msg("backup written")
	return nil
}
