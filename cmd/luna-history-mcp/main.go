// cmd/luna-history-mcp serves the conversation history and long-term memory
// tools over the Model Context Protocol.
//
// Startup sequence:
//  1. Load configuration (flags, config file, environment).
//  2. Open the existing conversation database, or load a YAML fixture when
//     conversation.source is fixture. A missing database file is fatal.
//  3. Provision the memory store (SQLite in the same file, Postgres, or in
//     process).
//  4. Serve JSON-RPC 2.0 on stdin/stdout, plus WebSocket when configured.
//
// ALL logging goes to stderr. Bytes on stdout that are not JSON-RPC frames
// corrupt the protocol.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scrypster/luna-history/internal/api/mcp"
	"github.com/scrypster/luna-history/internal/config"
	"github.com/scrypster/luna-history/internal/dispatch"
	"github.com/scrypster/luna-history/internal/fixture"
	"github.com/scrypster/luna-history/internal/logging"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/internal/storage/memstore"
	"github.com/scrypster/luna-history/internal/storage/postgres"
	"github.com/scrypster/luna-history/internal/storage/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.ConfigFileEnv+")")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "luna-history-mcp: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "luna-history-mcp: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "luna-history-mcp: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdin, os.Stdout); err != nil {
		log.Error("fatal", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// run serves until in is exhausted or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, in io.Reader, out io.Writer) error {
	var db *sql.DB
	if cfg.NeedsDatabase() {
		var err error
		db, err = sqlite.Open(ctx, cfg.Database.Path, cfg.Database.BusyTimeoutMs)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	convs, err := openConversationStore(cfg, db)
	if err != nil {
		return err
	}

	mem, closeMem, err := openMemoryStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeMem()

	if err := mem.Provision(ctx); err != nil {
		return fmt.Errorf("provision memory store: %w", err)
	}
	log.Info("stores ready",
		zap.String("conversation_source", cfg.Conversation.Source),
		zap.String("path", cfg.Database.Path),
		zap.String("memory_engine", cfg.Memory.Engine))

	d := dispatch.New(convs, mem,
		dispatch.WithLogger(log.Named("dispatch")),
		dispatch.WithLimits(dispatch.Limits{
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxLimit:     cfg.Search.MaxLimit,
			TitleLimit:   cfg.Titles.Limit,
		}),
		dispatch.WithBreaker(dispatch.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
		}),
	)
	srv := mcp.NewServer(d,
		mcp.WithLogger(log.Named("mcp")),
		mcp.WithServerInfo("luna-history", version))
	log.Info("session started", zap.String("session_id", srv.SessionID()))

	topts := []mcp.TransportOption{
		mcp.WithTransportLogger(log.Named("transport")),
		mcp.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsErr := make(chan error, 1)
	if addr := cfg.Server.WebSocketAddr; addr != "" {
		ws := mcp.NewWebSocketTransport(srv, topts...)
		go func() { wsErr <- ws.ListenAndServe(ctx, addr) }()
	} else {
		wsErr <- nil
	}

	log.Info("serving JSON-RPC 2.0 on stdin/stdout")
	err = mcp.NewStdioTransport(srv, in, out, topts...).Serve(ctx)
	cancel()
	if werr := <-wsErr; werr != nil {
		log.Error("websocket transport stopped", zap.Error(werr))
	}
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown requested")
		return nil
	}
	return err
}

// openConversationStore returns the configured conversation source. The
// fixture source serves either the named YAML file or the built-in sample.
func openConversationStore(cfg *config.Config, db *sql.DB) (storage.ConversationStore, error) {
	if cfg.Conversation.Source != config.SourceFixture {
		return sqlite.NewConversationStore(db), nil
	}
	f := fixture.Sample()
	if path := cfg.Conversation.Fixture; path != "" {
		var err error
		if f, err = fixture.Load(path); err != nil {
			return nil, err
		}
	}
	return memstore.FromFixture(f), nil
}

// openMemoryStore returns the configured memory backend and its closer.
// The SQLite backend shares db and needs no separate close.
func openMemoryStore(ctx context.Context, cfg *config.Config, db *sql.DB) (storage.MemoryStore, func(), error) {
	switch cfg.Memory.Engine {
	case config.EnginePostgres:
		pg, err := postgres.NewMemoryStore(ctx, cfg.Memory.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case config.EngineMemory:
		return memstore.NewMemoryStore(), func() {}, nil
	default:
		return sqlite.NewMemoryStore(db), func() {}, nil
	}
}
