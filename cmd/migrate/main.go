// Command migrate runs the embedded goose migrations against the configured database.
//
// Usage:
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down
//	go run ./cmd/migrate status
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"parking-service/internal/config"
	"parking-service/internal/db"
	"parking-service/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: migrate [-config file] <command> [args]")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.UsesMemoryStore() {
		log.Fatal().Msg("database.dsn is empty, nothing to migrate")
	}

	// Migrations run explicitly below, not on connect.
	cfg.Database.AutoMigrate = false
	gdb, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	command := flag.Arg(0)
	if err := db.RunMigrations(context.Background(), gdb, command, flag.Args()[1:]...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
	log.Info().Str("command", command).Msg("migration finished")
}
