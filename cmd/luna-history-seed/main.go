// cmd/luna-history-seed builds a conversation database from a YAML fixture
// so the MCP server can be exercised without the application that normally
// owns the file.
//
//	luna-history-seed -out history.db [-fixture conversations.yaml]
//
// Without -fixture the built-in sample conversations are written.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/scrypster/luna-history/internal/fixture"
	"github.com/scrypster/luna-history/internal/logging"
)

func main() {
	out := flag.String("out", "", "database file to create (required)")
	fixturePath := flag.String("fixture", "", "YAML fixture (default: built-in sample)")
	force := flag.Bool("force", false, "overwrite an existing database file")
	flag.Parse()

	log, err := logging.New("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "luna-history-seed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := seed(context.Background(), *out, *fixturePath, *force); err != nil {
		log.Error("seed failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("database seeded", zap.String("path", *out))
}

func seed(ctx context.Context, out, fixturePath string, force bool) error {
	if out == "" {
		return errors.New("-out is required")
	}
	if _, err := os.Stat(out); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", out)
		}
		if err := os.Remove(out); err != nil {
			return err
		}
	}

	f := fixture.Sample()
	if fixturePath != "" {
		var err error
		if f, err = fixture.Load(fixturePath); err != nil {
			return err
		}
	}

	db, err := sql.Open("sqlite", out)
	if err != nil {
		return fmt.Errorf("open %s: %w", out, err)
	}
	defer db.Close()
	return fixture.Seed(ctx, db, f)
}
