package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hurttlocker/leasebot/internal/backend"
	"github.com/hurttlocker/leasebot/internal/config"
	"github.com/hurttlocker/leasebot/internal/events"
	"github.com/hurttlocker/leasebot/internal/outbox"
	"github.com/hurttlocker/leasebot/internal/respond"
	"github.com/hurttlocker/leasebot/internal/session"
	"github.com/hurttlocker/leasebot/internal/store"
)

// drainTimeout bounds how long shutdown waits for queued persistence.
const drainTimeout = 10 * time.Second

// app is the wired runtime shared by chat and mcp.
type app struct {
	cfg    config.ResolvedConfig
	logger *slog.Logger

	engine    *session.Engine
	outbox    *outbox.Outbox
	db        *store.SQLiteStore // nil when a backend is configured
	backend   *backend.Client    // nil without a backend
	searcher  respond.Searcher
	publisher events.Publisher
	closers   []func() error
}

func resolveConfig() (config.ResolvedConfig, error) {
	level := globalLogLevel
	if globalVerbose {
		level = "debug"
	}
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    globalConfigPath,
		EnvFile:       globalEnvFile,
		CLIDBPath:     globalDBPath,
		CLIBackendURL: globalBackendURL,
		CLIStore:      globalStore,
		CLILogLevel:   level,
	})
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to stderr; stdout belongs to chat and MCP.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg config.ResolvedConfig) (*store.SQLiteStore, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// openApp wires sessions, routing and persistence from the resolved config.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel.Value)
	a := &app{cfg: cfg, logger: logger}

	if err := a.openDurable(); err != nil {
		a.close()
		return nil, err
	}
	sessions, err := a.openSessions(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	lookup, _ := cfg.SearchTimeout.Duration(respond.DefaultLookupTimeout)
	router := respond.NewRouter(
		respond.WithSearcher(a.searcher),
		respond.WithLookupTimeout(lookup),
		respond.WithLogger(logger),
	)

	var sink outbox.Sink = a.db
	if a.backend != nil {
		sink = a.backend
	}
	a.publisher = events.Connect(cfg.AMQPURL.Value, cfg.AMQPExchange.Value, "leasebot", logger)
	sink = outbox.WithPublisher(sink, a.publisher, logger)

	var engine *session.Engine
	a.outbox = outbox.New(sink, outboxConfig(cfg),
		outbox.WithLogger(logger),
		outbox.WithAssign(func(ctx context.Context, sessionID, leadID string) error {
			return engine.AssignID(ctx, sessionID, leadID)
		}),
	)
	engine = session.NewEngine(sessions,
		session.WithRouter(router),
		session.WithOutbox(a.outbox),
		session.WithLogger(logger),
	)
	a.engine = engine

	logger.Debug("leasebot ready",
		slog.String("session_store", cfg.SessionStore.Value),
		slog.Bool("backend", a.backend != nil),
		slog.Bool("amqp", cfg.AMQPURL.Value != ""),
	)
	return a, nil
}

// openDurable picks the backend API when configured, else the local database.
func (a *app) openDurable() error {
	if a.cfg.BackendURL.Value == "" {
		db, err := openStore(a.cfg)
		if err != nil {
			return err
		}
		a.db, a.searcher = db, db
		a.closers = append(a.closers, db.Close)
		return nil
	}

	headers := map[string]string{}
	if tok := a.cfg.BackendToken.Value; tok != "" {
		headers["Authorization"] = "Bearer " + tok
	}
	client, err := backend.New(backend.Config{
		BaseURL: a.cfg.BackendURL.Value,
		Headers: headers,
		Version: version,
	})
	if err != nil {
		return err
	}
	a.backend, a.searcher = client, client
	return nil
}

func (a *app) openSessions(ctx context.Context) (session.Store, error) {
	ttl, _ := a.cfg.SessionTTL.Duration(0)
	if a.cfg.SessionStore.Value != config.StoreRedis {
		return session.NewMemoryStore(session.Eviction{TTL: ttl}), nil
	}
	rdb, err := session.DialRedis(ctx, a.cfg.RedisURL.Value)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return session.NewRedisStore(rdb, session.DefaultKeyPrefix, ttl), nil
}

func outboxConfig(cfg config.ResolvedConfig) outbox.Config {
	out := outbox.DefaultConfig()
	out.Buffer, _ = cfg.OutboxBuffer.Int(out.Buffer)
	out.Rate, _ = cfg.OutboxRate.Float(out.Rate)
	out.MaxAttempts, _ = cfg.OutboxAttempts.Int(out.MaxAttempts)
	return out
}

// close drains the outbox, then releases connections in reverse order.
func (a *app) close() {
	if a.outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.outbox.Close(ctx); err != nil {
			a.logger.Warn("outbox not drained", slog.Any("error", err))
		}
		cancel()
		st := a.outbox.Stats()
		a.logger.Debug("outbox closed",
			slog.Int64("delivered", st.Delivered),
			slog.Int64("failed", st.Failed),
			slog.Int64("dropped", st.Dropped),
		)
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
}
