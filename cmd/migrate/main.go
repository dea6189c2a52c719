package main

import (
	"flag"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/johnquangdev/clinical-scribe/internal/infrastructure/database"
	"github.com/johnquangdev/clinical-scribe/pkg/config"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	direction := migrate.Up
	if *down {
		direction = migrate.Down
	}

	logger.Info("🔄 Applying migrations", zap.String("dir", database.MigrationsDir), zap.Bool("down", *down))
	if _, err := database.Migrate(db, direction, logger); err != nil {
		logger.Fatal("Migration failed", zap.Error(err))
	}
}
