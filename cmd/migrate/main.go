package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/db"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
	"github.com/artisanalley/marketplace-backend/pkg/migrate"
)

const serviceName = "migrate"

const usage = `usage: migrate [flags] <command> [arg]

commands:
  up             apply all pending migrations
  down           roll back the latest migration
  status         list migrations and whether they are applied
  version        print the current database version
  to <version>   migrate up or down to <version> (YYYYMMDDHHMMSS)
  create <name>  write a new empty migration into -dir
  validate       check migration names and goose markers in -dir

flags:
`

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", migrate.DefaultDir, "migrations directory on disk")
	useEmbedded := flag.Bool("embedded", false, "use the migrations compiled into the binary instead of -dir")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)

	if err := run(command, arg, *dir, *useEmbedded); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", command, err)
		os.Exit(1)
	}
}

func run(command, arg, dir string, useEmbedded bool) error {
	// create and validate only touch the filesystem.
	switch command {
	case "create":
		if arg == "" {
			return errors.New("missing migration name")
		}
		path, err := migrate.CreateSQLMigration(dir, arg, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := validate(dir, useEmbedded); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		JSONOnly:    cfg.App.IsProd(),
	})
	source := dir
	if useEmbedded {
		source = "embedded"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"command": command,
		"source":  source,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, migrations(dir, useEmbedded))
	if err != nil {
		return err
	}

	switch command {
	case "up":
		applied, err := runner.Up(ctx)
		migrate.LogApplied(ctx, logg, applied)
		return err
	case "down":
		applied, err := runner.Down(ctx)
		migrate.LogApplied(ctx, logg, applied)
		return err
	case "to":
		target, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", arg, err)
		}
		applied, err := runner.MigrateTo(ctx, target)
		migrate.LogApplied(ctx, logg, applied)
		return err
	case "version":
		v, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(states)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func migrations(dir string, useEmbedded bool) fs.FS {
	if useEmbedded {
		return migrate.Embedded()
	}
	return migrate.Disk(dir)
}

func validate(dir string, useEmbedded bool) error {
	if useEmbedded {
		return migrate.Validate(migrate.Embedded())
	}
	return migrate.ValidateDir(dir)
}

func printStatus(states []migrate.State) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, s := range states {
		appliedAt := "pending"
		if s.Applied {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, appliedAt, s.Path)
	}
}
