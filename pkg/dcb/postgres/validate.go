package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/pkg/dcb"
)

// validateEventsTable checks that the `events` table exists with the
// columns the Event Log reads and writes. Grounded on the teacher's own
// pre-flight check in its EventStore constructors.
func validateEventsTable(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = 'events'
	`
	rows, err := pool.Query(ctx, q)
	if err != nil {
		return &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "validateEventsTable", Err: err},
			Resource:        "database",
		}
	}
	defer rows.Close()

	want := map[string]bool{
		"position": true, "transaction_id": true, "type": true,
		"tags": true, "data": true, "occurred_at": true,
	}
	found := map[string]bool{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return &dcb.ResourceError{
				EventStoreError: dcb.EventStoreError{Op: "validateEventsTable", Err: err},
				Resource:        "database",
			}
		}
		found[col] = true
	}
	if len(found) == 0 {
		return &dcb.TableStructureError{
			EventStoreError: dcb.EventStoreError{Op: "validateEventsTable"},
			TableName:       "events",
			Issue:           "table does not exist - run migrations before opening the store",
		}
	}
	for col := range want {
		if !found[col] {
			return &dcb.TableStructureError{
				EventStoreError: dcb.EventStoreError{Op: "validateEventsTable"},
				TableName:       "events",
				ColumnName:      col,
				Issue:           "expected column is missing",
			}
		}
	}
	return nil
}

// validateCommandsTable is a softer check: the commands audit table is
// optional (persist_commands=false skips it entirely), so a missing
// table is not an error, only a missing column on an existing table is.
func validateCommandsTable(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = 'commands'
	`
	rows, err := pool.Query(ctx, q)
	if err != nil {
		return &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "validateCommandsTable", Err: err},
			Resource:        "database",
		}
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return &dcb.ResourceError{
				EventStoreError: dcb.EventStoreError{Op: "validateCommandsTable", Err: err},
				Resource:        "database",
			}
		}
		found[col] = true
	}
	if len(found) == 0 {
		return nil // optional table, not present yet
	}
	for _, col := range []string{"transaction_id", "command_type", "payload", "metadata", "created_at"} {
		if !found[col] {
			return &dcb.TableStructureError{
				EventStoreError: dcb.EventStoreError{Op: "validateCommandsTable"},
				TableName:       "commands",
				ColumnName:      col,
				Issue:           "expected column is missing",
			}
		}
	}
	return nil
}
