// Command migrate applies or reverts the run ledger schema.
//
// Usage:
//
//	migrate up
//	migrate down
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/sarpipe/internal/pkg/config"
	"github.com/samirrijal/sarpipe/internal/pkg/logging"
	"github.com/samirrijal/sarpipe/migrations"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down>")
		os.Exit(2)
	}

	cfg, err := config.Load("sarpipe-migrate", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	var files []string
	switch os.Args[1] {
	case "up":
		files, err = migrations.Up()
	case "down":
		files, err = migrations.Down()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		log.Error("list migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := apply(ctx, pool, files, log); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "direction", os.Args[1], "files", len(files))
}

// apply runs every file in its own transaction, stopping at the first failure.
func apply(ctx context.Context, pool *pgxpool.Pool, files []string, log *slog.Logger) error {
	for _, f := range files {
		sql, err := migrations.Read(f)
		if err != nil {
			return err
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		log.Info("applied", "file", f)
	}
	return nil
}
