// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/terraatlas/terra/internal/api"
	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/auth/postgres"
	"github.com/terraatlas/terra/internal/config"
	"github.com/terraatlas/terra/internal/core"
	"github.com/terraatlas/terra/internal/country"
	"github.com/terraatlas/terra/internal/favorites"
	"github.com/terraatlas/terra/internal/logging"
	"github.com/terraatlas/terra/internal/observability"
	"github.com/terraatlas/terra/internal/store"
)

const (
	serviceName     = "terra"
	shutdownTimeout = 10 * time.Second
	readinessPing   = 2 * time.Second
	lookupRetryBase = 200 * time.Millisecond
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server. Pending database migrations are applied
first unless --skip-migrate is set. Metrics and health endpoints are
served on a separate address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, skipMigrate, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations at startup")

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, skipMigrate bool, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = defaultPool
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = defaultMigrator
	}
	if deps.RedisFactory == nil {
		deps.RedisFactory = defaultRedis
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(addr string, handler http.Handler) HTTPServer {
			return api.NewServer(addr, handler)
		}
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := logging.SetDefault(serviceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	logger.Info("starting terra",
		"http_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"lookup_base_url", cfg.LookupBaseURL,
	)

	if !skipMigrate {
		if err := applyMigrations(deps, cfg.DatabaseURL); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessPing)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
	}

	lookup, closeLookup, err := buildLookup(cfg, deps, logger)
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}
	defer closeLookup()

	svc, janitor, err := buildCore(cfg, pool, lookup, metrics, logger)
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}

	tokens := api.NewCookieTransport(cfg.CookieName, cfg.CookieSecure)
	routerOpts := api.Options{ClientOrigin: cfg.ClientOrigin, Tokens: tokens, Logger: logger}
	if metrics != nil {
		routerOpts.Observer = metrics
	}
	handler, err := api.NewRouter(svc, routerOpts)
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}

	apiServer := deps.APIServerFactory(cfg.HTTPAddr, handler)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServer(obsServer, "observability")
		return oops.Code("API_START_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	janitor.Start(ctx)

	if cmd != nil {
		cmd.Println("Terra API started on " + apiServer.Addr())
	}
	logger.Info("terra ready", "http_addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	janitor.Stop()
	stopServer(apiServer, "api")
	stopServer(obsServer, "observability")

	logger.Info("shutdown complete")
	return nil
}

func applyMigrations(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	current, _, err := migrator.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	slog.Info("database schema up to date", "version", current)
	return nil
}

// buildLookup creates the country client, fronted by the redis cache when
// one is configured. The returned func releases the cache connection.
func buildLookup(cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (country.Lookup, func(), error) {
	client, err := country.NewClient(cfg.LookupBaseURL,
		country.WithHTTPClient(&http.Client{Timeout: cfg.LookupTimeout}),
		country.WithRetries(uint64(cfg.LookupRetries), lookupRetryBase), //nolint:gosec // validated non-negative
		country.WithClientLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		return client, func() {}, nil
	}

	rdb, err := deps.RedisFactory(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("country cache enabled", "ttl", cfg.LookupCacheTTL)
	cached := country.Cached(client, country.NewRedisCache(rdb, cfg.LookupCacheTTL), logger)
	return cached, func() {
		if closeErr := rdb.Close(); closeErr != nil {
			logger.Warn("failed to close redis client", "error", closeErr)
		}
	}, nil
}

// buildCore wires the repositories, auth, and favorites into core.Service.
// metrics may be nil when the observability server is disabled.
func buildCore(cfg *config.Config, pool Pool, lookup country.Lookup, metrics *observability.Metrics, logger *slog.Logger) (*core.Service, *store.Janitor, error) {
	accounts := postgres.NewAccountRepository(pool)
	sessions := postgres.NewSessionRepository(pool)

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.HashParams())
	if err != nil {
		return nil, nil, err
	}

	authOpts := []auth.ServiceOption{auth.WithSessionTTL(cfg.SessionTTL), auth.WithLogger(logger)}
	favOpts := []favorites.Option{
		favorites.WithLookupTimeout(cfg.LookupTimeout),
		favorites.WithLookupConcurrency(cfg.LookupConcurrency),
		favorites.WithLogger(logger),
	}
	janitorOpts := []store.JanitorOption{store.WithPurgeInterval(cfg.SessionPurgeInterval), store.WithJanitorLogger(logger)}
	if metrics != nil {
		authOpts = append(authOpts, auth.WithObserver(metrics))
		favOpts = append(favOpts, favorites.WithLookupObserver(metrics))
		janitorOpts = append(janitorOpts, store.WithPurgeObserver(metrics))
	}

	authSvc, err := auth.NewService(accounts, sessions, hasher, authOpts...)
	if err != nil {
		return nil, nil, err
	}
	gate, err := auth.NewGate(authSvc, accounts, logger)
	if err != nil {
		return nil, nil, err
	}
	favs, err := favorites.NewManager(accounts, lookup, favOpts...)
	if err != nil {
		return nil, nil, err
	}
	svc, err := core.NewService(authSvc, gate, accounts, favs, logger)
	if err != nil {
		return nil, nil, err
	}
	janitor, err := store.NewJanitor(sessions, janitorOpts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, janitor, nil
}

// stopServer shuts srv down within shutdownTimeout. A nil srv is ignored.
func stopServer(srv HTTPServer, name string) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
