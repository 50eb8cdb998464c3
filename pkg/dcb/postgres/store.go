// Package postgres is the Postgres-backed implementation of dcb.EventStore:
// the Event Log, Query Compiler, Append-If Engine and Projector of
// spec §4.1-§4.4, plus the schema migrations they run against.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/pkg/dcb"
)

// eventStore is the sole dcb.EventStore implementation. It owns a
// pgxpool.Pool and talks to the `events` table described in
// migrations/0001_init.up.sql.
type eventStore struct {
	pool   *pgxpool.Pool
	config dcb.EventStoreConfig
}

// Open validates the schema and returns a ready EventStore using the
// default configuration.
func Open(ctx context.Context, pool *pgxpool.Pool) (dcb.EventStore, error) {
	return OpenWithConfig(ctx, pool, dcb.DefaultEventStoreConfig())
}

// OpenWithConfig validates the schema and returns a ready EventStore
// using the given configuration.
func OpenWithConfig(ctx context.Context, pool *pgxpool.Pool, config dcb.EventStoreConfig) (dcb.EventStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := validateEventsTable(ctx, pool); err != nil {
		return nil, err
	}
	if err := validateCommandsTable(ctx, pool); err != nil {
		return nil, err
	}

	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 1000
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = 1000
	}
	if config.QueryTimeoutMs <= 0 {
		config.QueryTimeoutMs = 15000
	}
	if config.AppendTimeoutMs <= 0 {
		config.AppendTimeoutMs = 10000
	}

	return &eventStore{pool: pool, config: config}, nil
}

func (es *eventStore) GetConfig() dcb.EventStoreConfig { return es.config }

// Pool exposes the underlying pool. The command executor reads the
// pool field directly and the processor runtime is handed its own pool
// by cmd/walletd, so neither calls this method. Not part of
// dcb.EventStore - deliberately not exported through that interface
// so application code can't bypass the store's guarantees, per the
// teacher's own comment on its GetPool method.
func (es *eventStore) Pool() *pgxpool.Pool { return es.pool }

func (es *eventStore) CurrentTransactionID(ctx context.Context) (string, error) {
	var xid string
	err := es.pool.QueryRow(ctx, "SELECT pg_current_xact_id()::text").Scan(&xid)
	if err != nil {
		return "", &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "CurrentTransactionID", Err: err},
			Resource:        "database",
		}
	}
	return xid, nil
}
