package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/infrastructure/logger"
	"github.com/salesplan/backend/internal/infrastructure/migration"
	"github.com/salesplan/backend/internal/infrastructure/persistence"
	"github.com/salesplan/backend/migrations"
)

func main() {
	var (
		configPath string
		logLevel   string
		dir        string
	)

	flag.StringVar(&configPath, "config", "", "Path to config.toml (default: search ., ./config, /app)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&dir, "dir", "migrations", "Directory new migration files are written to")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	// list only reads the embedded files
	if command == "list" {
		names, err := migration.List(migrations.FS)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		log.Info("Available migrations", zap.Int("count", len(names)))
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return
	}

	if command == "create" {
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate create <name> [description]")
		}
		description := args[1]
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration files created",
			zap.String("version", mf.Version),
			zap.String("up", mf.UpPath),
			zap.String("down", mf.DownPath),
		)
		return
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.App.Env == "production" {
		log.Fatal("Refusing to migrate a production database: the sales plan table is owned by the source system")
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("database", cfg.Database.RedactedDSN()),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get database handle", zap.Error(err))
	}

	m, err := migration.New(sqlDB, migrations.FS, migration.Config{SchemaName: cfg.Database.Schema}, log)
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration up failed", zap.Error(err))
		}

	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Migration down failed", zap.Error(err))
		}

	case "step":
		if len(args) < 2 {
			log.Fatal("Step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid step count", zap.String("value", args[1]))
		}
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		if version == 0 {
			log.Info("No migrations applied")
		} else {
			log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty),
			)
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		if err := m.Force(version); err != nil {
			log.Fatal("Force version failed", zap.Error(err))
		}

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Sales plan development database migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Create the sales plan table and seed sample rows
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  version               Show current migration version
  force <version>       Force set migration version (clears a dirty state)
  list                  List embedded migrations
  create <name> [desc]  Scaffold the next numbered up/down pair in -dir

Flags:
  -config string        Path to config.toml
  -log-level string     Log level: debug, info, warn, error (default: info)
  -dir string           Target directory for create (default: migrations)

Environment Variables:
  SALESPLAN_DATABASE_HOST, SALESPLAN_DATABASE_PORT, SALESPLAN_DATABASE_USER,
  SALESPLAN_DATABASE_PASSWORD, SALESPLAN_DATABASE_DBNAME

Migrations are for local and test databases only and are refused when
app.env is production.`)
}
