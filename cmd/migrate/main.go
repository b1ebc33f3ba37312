package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatehouse.io/internal/migrate"
)

const usageText = `usage: migrate [flags] <command>

Commands:
  up      apply pending schema migrations
  down    roll back the most recently applied migration
  seed    load the built-in role and permission catalog
  status  print applied migrations in order

Flags:
`

func main() {
	log.SetFlags(0)
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("GATEHOUSE_PG_DSN"), "PostgreSQL DSN (defaults to GATEHOUSE_PG_DSN)")
	migrationsPath := fs.String("migrations", "ops/migrations/sql", "directory with .up.sql/.down.sql files")
	seedsPath := fs.String("seeds", "ops/migrations/seeds", "directory with seed .sql files")
	timeout := fs.Duration("timeout", 30*time.Second, "overall command timeout")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		log.Fatal("migrate: no DSN: pass -dsn or set GATEHOUSE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("migrate: open db: %v", err)
	}
	defer db.Close()

	if err := run(ctx, migrate.NewManager(db, *migrationsPath, *seedsPath), fs.Arg(0)); err != nil {
		log.Fatalf("migrate %s: %v", fs.Arg(0), err)
	}
}

func run(ctx context.Context, mgr *migrate.Manager, command string) error {
	switch command {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
