package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/foodrescue-backend/pkg/config"
	"github.com/angelmondragon/foodrescue-backend/pkg/db"
	"github.com/angelmondragon/foodrescue-backend/pkg/instance"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
	"github.com/angelmondragon/foodrescue-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	opts := options{}
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for -cmd=create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (for -cmd=version)")
	flag.Parse()

	// create and validate only touch the filesystem, so they run without config.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(2)
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"cmd":      opts.cmd,
		"dir":      opts.dir,
		"instance": instance.GetID(),
	})

	if err := run(ctx, cfg, logg, opts); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
	case "version":
		if opts.version == "" {
			return fmt.Errorf("%w: missing -version for version command", errUsage)
		}
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, opts.cmd)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database handle: %w", err)
	}

	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
}
