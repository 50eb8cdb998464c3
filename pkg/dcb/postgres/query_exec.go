package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dcbstore/pkg/dcb"
)

func (es *eventStore) Query(ctx context.Context, q dcb.Query, cursor dcb.Cursor) ([]dcb.Event, error) {
	if err := dcb.ValidateQueryTags(q); err != nil {
		return nil, err
	}

	sqlQuery, args, err := buildReadQuerySQL(q, cursor, nil)
	if err != nil {
		return nil, &dcb.EventStoreError{Op: "Query", Err: fmt.Errorf("build SQL: %w", err)}
	}

	var events []dcb.Event
	err = es.withReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlQuery, args...)
		if err != nil {
			return &dcb.EventStoreError{Op: "Query", Err: fmt.Errorf("execute: %w", err)}
		}
		defer rows.Close()

		for rows.Next() {
			var row rowEvent
			if err := rows.Scan(&row.Type, &row.Tags, &row.Data, &row.TransactionID, &row.Position, &row.OccurredAt); err != nil {
				return &dcb.EventStoreError{Op: "Query", Err: fmt.Errorf("scan: %w", err)}
			}
			events = append(events, convertRowToEvent(row))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (es *eventStore) QueryStream(ctx context.Context, q dcb.Query, cursor dcb.Cursor) (<-chan dcb.Event, error) {
	if err := dcb.ValidateQueryTags(q); err != nil {
		return nil, err
	}

	sqlQuery, args, err := buildReadQuerySQL(q, cursor, nil)
	if err != nil {
		return nil, &dcb.EventStoreError{Op: "QueryStream", Err: fmt.Errorf("build SQL: %w", err)}
	}

	eventChan := make(chan dcb.Event, es.config.StreamBuffer)
	go func() {
		defer close(eventChan)

		rows, err := es.pool.Query(ctx, sqlQuery, args...)
		if err != nil {
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row rowEvent
			if err := rows.Scan(&row.Type, &row.Tags, &row.Data, &row.TransactionID, &row.Position, &row.OccurredAt); err != nil {
				return
			}
			select {
			case eventChan <- convertRowToEvent(row):
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventChan, nil
}

// withTimeout honors the caller's context deadline if set, otherwise
// falls back to defaultMs - adapted from the teacher's append.go, which
// uses the same hybrid-timeout idiom for write transactions.
func (es *eventStore) withTimeout(ctx context.Context, defaultMs int) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(context.Background(), deadline)
	}
	return context.WithTimeout(context.Background(), msDuration(defaultMs))
}

func (es *eventStore) withReadTx(ctx context.Context, fn func(pgx.Tx) error) error {
	readCtx, cancel := es.withTimeout(ctx, es.config.QueryTimeoutMs)
	defer cancel()

	tx, err := es.pool.BeginTx(readCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "withReadTx", Err: fmt.Errorf("begin: %w", err)},
			Resource:        "database",
		}
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
