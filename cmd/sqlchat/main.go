package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlchat/sqlchat/internal/cache"
	"github.com/sqlchat/sqlchat/internal/chat"
	"github.com/sqlchat/sqlchat/internal/cli/sqlchat"
	"github.com/sqlchat/sqlchat/internal/config"
	"github.com/sqlchat/sqlchat/internal/identity"
	"github.com/sqlchat/sqlchat/internal/llm"
	"github.com/sqlchat/sqlchat/internal/nl2sql"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/policy"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/respond"
	"github.com/sqlchat/sqlchat/internal/schema"
	"github.com/sqlchat/sqlchat/internal/store"
	s3store "github.com/sqlchat/sqlchat/internal/storage/s3"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}
	cfg, err := config.LoadFromEnv("sqlchat")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return 1
	}

	logWriter := observability.LogWriter(cfg, os.Stderr)
	defer func() { _ = logWriter.Close() }()
	logger := observability.NewLogger(cfg, logWriter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracing, err := observability.InitTracing(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}()
	if cfg.Observability.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Observability.MetricsAddr, cfg.Service.Name, logger); err != nil {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	principal, err := authenticate(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	ctx = identity.WithPrincipal(ctx, principal)

	db, err := store.Open(ctx, store.DBConfig{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		return 1
	}
	defer func() { _ = db.Close() }()
	reader := store.NewReader(db, store.ReaderOptions{Driver: cfg.Store.Driver, QueryTimeout: cfg.Store.QueryTimeout})

	persister, err := cachePersister(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize cache backend", slog.Any("error", err))
		return 1
	}
	resultCache := cache.New(ctx, persister, cache.Options{TTL: cfg.Cache.TTL, Logger: logger})

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		return 1
	}
	completer := llm.WithLanguage(client, cfg.AI.Language)

	validator := policy.DefaultValidator()
	if cfg.Store.Driver == config.DriverDuckDB {
		validator = validator.WithBlockedKeywords(policy.DuckDBBlockedKeywords...)
	}
	genOpts := nl2sql.Options{Temperature: cfg.AI.Temperature, NormalizeKeys: cfg.Cache.NormalizeKeys, Logger: logger}
	formatOpts := respond.Options{Logger: logger}
	if cfg.Chat.Narrate {
		formatOpts.Completer = completer
	}

	session, err := chat.New(ctx, chat.Deps{
		Schema:    schema.NewIntrospector(reader, cfg.Store.Schema, validator.AllowedTables()),
		Analyzer:  nl2sql.NewAnalyzer(completer, resultCache, genOpts),
		Generator: nl2sql.NewGenerator(completer, resultCache, genOpts),
		Executor:  query.NewExecutor(reader, validator, resultCache, logger),
		Formatter: respond.NewFormatter(formatOpts),
		Cache:     resultCache,
		Completer: completer,
		Tracer:    tracer,
		Logger:    logger,
	}, chat.Options{
		TechLevel:           respond.Level(cfg.Chat.TechLevel),
		HistoryLimit:        cfg.Chat.HistoryLimit,
		FeedbackTemperature: cfg.AI.FeedbackTemperature,
	})
	if err != nil {
		logger.Error("failed to start chat session", slog.Any("error", err))
		_, _ = fmt.Fprintf(os.Stderr, "No se pudo iniciar la sesión: %v\n", err)
		return 1
	}

	logger.Info("chat session started",
		slog.String("user", principal.Name),
		slog.String("model", client.Model()),
		slog.String("store_driver", cfg.Store.Driver),
	)
	return sqlchat.Run(ctx, os.Args[1:], sqlchat.Options{
		Session: session,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
}

// authenticate resolves SQLCHAT_USER and SQLCHAT_PASSWORD against the static
// user list. Only administrators may open a session.
func authenticate(ctx context.Context, cfg config.Config, logger *slog.Logger) (identity.Principal, error) {
	authenticator, err := identity.NewStaticAuthenticator(cfg.Auth.StaticUsers, logger)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("parse static users: %w", err)
	}
	outcome := authenticator.Authenticate(ctx, os.Getenv("SQLCHAT_USER"), os.Getenv("SQLCHAT_PASSWORD"))
	switch o := outcome.(type) {
	case identity.Authenticated:
		if !o.Principal.IsAdmin() {
			return identity.Principal{}, chat.ErrAccessDenied
		}
		return o.Principal, nil
	case identity.Rejected:
		return identity.Principal{}, fmt.Errorf("authentication failed: %s", o.Reason)
	default:
		return identity.Principal{}, fmt.Errorf("authentication failed")
	}
}

func cachePersister(ctx context.Context, cfg config.Config) (cache.Persister, error) {
	if cfg.Cache.Backend != config.CacheBackendS3 {
		return cache.FilePersister{Path: cfg.Cache.Path}, nil
	}
	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	return cache.ObjectPersister{Store: objectStore, Key: cfg.Cache.ObjectKey}, nil
}
