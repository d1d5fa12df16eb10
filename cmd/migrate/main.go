package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"cats_bot/migrations"
)

const usage = `Usage: migrate [-db path] [command]

Manages the schema of the breeds cache.

Commands:
  status      Show migration status and cache size (default)
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  version     Show current version
  reset       Roll back all migrations, dropping every cached breed
`

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/cats.db"), "path to the breeds cache database")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := "status"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		log.Fatalf("create migration provider: %v", err)
	}

	if err := run(ctx, p, db, cmd); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, p *goose.Provider, db *sql.DB, cmd string) error {
	switch cmd {
	case "up":
		results, err := p.Up(ctx)
		printResults(results...)
		return err
	case "up-one":
		res, err := p.UpByOne(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			fmt.Println("already at the latest version")
			return nil
		}
		printResults(res)
		return err
	case "down":
		res, err := p.Down(ctx)
		printResults(res)
		return err
	case "reset":
		results, err := p.DownTo(ctx, 0)
		printResults(results...)
		return err
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version %d\n", v)
		return nil
	case "status":
		return status(ctx, p, db)
	default:
		return errors.New("unknown command, see migrate -h")
	}
}

func status(ctx context.Context, p *goose.Provider, db *sql.DB) error {
	statuses, err := p.Status(ctx)
	if err != nil {
		return err
	}
	applied := false
	for _, s := range statuses {
		at := "pending"
		if s.State == goose.StateApplied {
			at = s.AppliedAt.Format("2006-01-02 15:04:05")
			applied = true
		}
		fmt.Printf("%-30s %s\n", s.Source.Path, at)
	}
	if !applied {
		return nil
	}

	var total, favourites int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_favourited), 0) FROM breeds`,
	).Scan(&total, &favourites)
	if err != nil {
		return fmt.Errorf("count breeds: %w", err)
	}
	fmt.Printf("\n%d breeds cached, %d favourites\n", total, favourites)
	return nil
}

func printResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%-4s %-30s %s\n", r.Direction, r.Source.Path, r.Duration)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
