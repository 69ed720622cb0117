package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/academy/billing/internal/infrastructure/logger"
	"github.com/academy/billing/internal/infrastructure/migration"
	"github.com/academy/billing/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout", Service: "billing-migrate"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, migrationsPath, args); err != nil {
		log.Error("Migration failed", zap.String("command", args[0]), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.Logger, migrationsPath string, args []string) error {
	switch args[0] {
	case "create":
		return create(log, migrationsPath, args)
	case "list":
		return list(migrationsPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	src := migration.Embedded()
	if migrationsPath != "" {
		src = migration.Dir(migrationsPath)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migration.New(db, src, log)
	if err != nil {
		return err
	}
	defer m.Close()

	command := args[0]
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		n, err := intArg(args, "steps <n>")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "goto":
		n, err := intArg(args, "goto <version>")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("version must not be negative")
		}
		return m.GoTo(uint(n))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		n, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		log.Warn("Forcing migration version", zap.Int("version", n))
		return m.Force(n)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// create writes a new up/down pair. It needs -path or defaults to
// ./migrations since embedded migrations cannot be written.
func create(log *zap.Logger, dir string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: migrate create <name> [description]")
	}
	if dir == "" {
		dir = "migrations"
	}
	mf, err := migration.CreateMigration(dir, args[1], strings.Join(args[2:], " "), time.Now())
	if err != nil {
		return err
	}
	log.Info("Created migration",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath))
	return nil
}

func list(dir string) error {
	var fsys fs.FS = migrations.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	names, err := migration.ListMigrations(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s", usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Println(`Billing database migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                 Apply all pending migrations
  down               Roll back all migrations
  steps <n>          Apply n migrations (negative rolls back)
  goto <version>     Migrate to a specific version
  version            Show the current version
  force <version>    Set the version without running migrations
  create <name> [d]  Write a new up/down pair (default dir: ./migrations)
  list               Print the known migrations

Flags:
  -path string       Migrations directory (default: embedded migrations)
  -log-level string  debug, info, warn, error (default: info)

The database is configured by config.toml or BILLING_DATABASE_* variables.`)
}
