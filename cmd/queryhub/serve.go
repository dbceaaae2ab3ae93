// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/queryhub/queryhub/internal/auth"
	authpg "github.com/queryhub/queryhub/internal/auth/postgres"
	authredis "github.com/queryhub/queryhub/internal/auth/redis"
	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/content"
	contentpg "github.com/queryhub/queryhub/internal/content/postgres"
	"github.com/queryhub/queryhub/internal/logging"
	"github.com/queryhub/queryhub/internal/oauth"
	"github.com/queryhub/queryhub/internal/observability"
	"github.com/queryhub/queryhub/internal/store"
	"github.com/queryhub/queryhub/internal/web"
	"github.com/queryhub/queryhub/pkg/errutil"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	store.Querier
	store.Pinger
	Close()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// Connect opens the database.
	// Default: store.Connect
	Connect func(ctx context.Context, dsn string, opts store.ConnectOptions) (Database, error)

	// RedisClient opens the Redis session store client.
	// Default: go-redis client from the URL
	RedisClient func(ctx context.Context, url string) (goredis.UniversalClient, error)

	// Ready is called once both servers are listening.
	Ready func(apiAddr, metricsAddr string)

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API and the metrics and health server. The process
shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, nil)
		},
	}
}

func defaultRedisClient(ctx context.Context, url string) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}

// runServe wires the services and runs until ctx is cancelled or a server
// fails. If deps is nil, default implementations are used.
func runServe(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.Connect == nil {
		deps.Connect = func(ctx context.Context, dsn string, opts store.ConnectOptions) (Database, error) {
			return store.Connect(ctx, dsn, opts)
		}
	}
	if deps.RedisClient == nil {
		deps.RedisClient = defaultRedisClient
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err //nolint:wrapcheck // coded by logging
	}
	logger := logging.Setup("queryhub", version, cfg.Log.Format, deps.LogOutput, logging.WithLevel(level))
	slog.SetDefault(logger)

	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required: set DATABASE_URL or database.url")
	}

	logger.Info("starting queryhub",
		"api_addr", cfg.Server.Addr,
		"metrics_addr", cfg.Observability.Addr,
		"session_store", cfg.Auth.Session.Store,
		"federated", cfg.Auth.Federated.Enabled())

	connectOpts := store.DefaultConnectOptions()
	connectOpts.MaxRetries = cfg.Database.MaxRetries
	connectOpts.MaxConns = cfg.Database.MaxConns
	connectOpts.Logger = logger
	db, err := deps.Connect(ctx, cfg.Database.URL, connectOpts)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Observability.Addr != "" {
		obsServer = observability.NewServer(cfg.Observability.Addr, observability.PingReadiness(db, readinessTimeout))
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	users := authpg.NewUserRepository(db)

	var sessionRepo auth.SessionRepository
	switch cfg.Auth.Session.Store {
	case config.SessionStoreRedis:
		client, err := deps.RedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Debug("error closing redis client", "error", closeErr)
			}
		}()
		sessionRepo = authredis.NewSessionRepository(client, cfg.Redis.KeyPrefix)
	default:
		sessionRepo = authpg.NewSessionRepository(db)
	}

	hasher := auth.NewArgon2idHasherWithParams(cfg.Auth.Hash.Argon2Params())
	creds, err := auth.NewCredentialStore(users, hasher,
		auth.WithHashWorkers(cfg.Auth.Hash.Workers),
		auth.WithOperationTimeout(cfg.Auth.OperationTimeout),
		auth.WithCredentialRecorder(metrics))
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}
	resolver, err := auth.NewIdentityResolver(users, creds, logger)
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}
	sessions, err := auth.NewSessionManager(sessionRepo,
		auth.WithSessionTTL(cfg.Auth.Session.TTL),
		auth.WithSessionTimeout(cfg.Auth.OperationTimeout),
		auth.WithSessionRecorder(metrics))
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}
	authSvc, err := auth.NewService(auth.ServiceConfig{
		Users:       users,
		Credentials: creds,
		Resolver:    resolver,
		Sessions:    sessions,
		Logger:      logger,
		Recorder:    metrics,
	})
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}
	contentSvc, err := content.NewService(contentpg.NewPostRepository(db), contentpg.NewCommentRepository(db), users, logger)
	if err != nil {
		return err //nolint:wrapcheck // coded by content
	}

	webDeps := web.Deps{Auth: authSvc, Content: contentSvc, Metrics: metrics, Logger: logger}
	if fed := cfg.Auth.Federated; fed.Enabled() {
		provider, err := oauth.NewGoogleProvider(oauth.Config{
			ClientID:     fed.ClientID,
			ClientSecret: fed.ClientSecret,
			CallbackURL:  fed.CallbackURL,
		})
		if err != nil {
			return err //nolint:wrapcheck // coded by oauth
		}
		webDeps.Federated = provider
	}

	webServer, err := web.NewServer(web.Config{
		Addr:              cfg.Server.Addr,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Production:        cfg.Server.Production,
		CookieName:        cfg.Auth.Session.CookieName,
		CookieSecure:      cfg.Auth.Session.CookieSecure,
		SuccessURL:        cfg.Auth.Federated.SuccessURL,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, webDeps)
	if err != nil {
		return err //nolint:wrapcheck // coded by web
	}

	g, gctx := errgroup.WithContext(ctx)

	webErrCh, err := webServer.Start()
	if err != nil {
		return err //nolint:wrapcheck // coded by web
	}
	g.Go(func() error { return watchServer(gctx, webErrCh, "web") })

	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if stopErr := webServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop web server during cleanup", "error", stopErr)
			}
			return err //nolint:wrapcheck // coded by observability
		}
		metricsAddr = obsServer.Addr()
		g.Go(func() error { return watchServer(gctx, obsErrCh, "observability") })
		logger.Info("observability server started", "addr", metricsAddr)
	}

	g.Go(func() error {
		sessions.RunJanitor(gctx, cfg.Auth.Session.JanitorInterval, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := webServer.Stop(stopCtx); err != nil {
			errutil.LogError(logger, "error stopping web server", err)
		}
		if obsServer != nil {
			if err := obsServer.Stop(stopCtx); err != nil {
				errutil.LogError(logger, "error stopping observability server", err)
			}
		}
		return nil
	})

	logger.Info("queryhub ready", "api_addr", webServer.Addr())
	if deps.Ready != nil {
		deps.Ready(webServer.Addr(), metricsAddr)
	}

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // coded by watchServer
	}
	logger.Info("shutdown complete")
	return nil
}

// watchServer returns the first error a server reports, which cancels the
// group. A closed channel means the server stopped cleanly.
func watchServer(ctx context.Context, errCh <-chan error, name string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
	case <-ctx.Done():
		// Drain until Stop closes the channel so a late error is not lost.
		for err := range errCh {
			if err != nil {
				return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
			}
		}
		return nil
	}
}
