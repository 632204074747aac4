// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/terraatlas/terra/internal/auth/postgres"
	"github.com/terraatlas/terra/internal/observability"
	"github.com/terraatlas/terra/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.NewPool
	PoolFactory func(ctx context.Context, url string) (Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// RedisFactory connects to the country cache.
	// Default: redis.ParseURL + redis.NewClient
	RedisFactory func(url string) (RedisClient, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the public HTTP server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler) HTTPServer
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.Querier
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
	Status() (store.MigrationStatus, error)
	Close() error
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Cmdable
	Close() error
}

// HTTPServer wraps the methods used from api.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	HTTPServer
	Metrics() *observability.Metrics
}

func defaultPool(ctx context.Context, url string) (Pool, error) {
	pool, err := store.NewPool(ctx, url)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func defaultMigrator(url string) (Migrator, error) {
	m, err := store.NewMigrator(url)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func defaultRedis(url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	return redis.NewClient(opts), nil
}
