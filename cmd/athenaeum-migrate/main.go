// Package main is the entry point for the Athenaeum database migration
// tool. It applies the embedded schema migrations for either backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/config"
	"github.com/athenaeum-io/athenaeum/internal/repository/postgres"
	"github.com/athenaeum-io/athenaeum/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	switch command {
	case "version":
		fmt.Printf("Athenaeum Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := migrateUp(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func migrateUp(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cfg.Database.Driver {
	case "sqlite":
		dbCfg := sqlite.DefaultConfig(cfg.Database.Path)
		dbCfg.JournalMode = cfg.Database.JournalMode
		dbCfg.BusyTimeout = cfg.Database.BusyTimeout
		dbCfg.SynchronousMode = cfg.Database.SynchronousMode

		db, err := sqlite.NewDB(ctx, dbCfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func printUsage() {
	fmt.Println(`Athenaeum Migration Tool

Usage:
  athenaeum-migrate [-config path] <command>

Commands:
  up          Apply all pending migrations
  version     Print version information
  help        Show this help message

Configuration is read the same way the server reads it: a YAML file
plus ATHENAEUM_-prefixed environment variables.

Examples:
  athenaeum-migrate up
  athenaeum-migrate -config ./configs/config.yaml up
  ATHENAEUM_DATABASE_DRIVER=postgres athenaeum-migrate up`)
}
