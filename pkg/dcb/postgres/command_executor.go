package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/internal/clock"
	"dcbstore/internal/metrics"
	"dcbstore/pkg/dcb"
)

// commandExecutor is the concrete dcb.CommandExecutor. It lives here,
// not in pkg/dcb, because it needs direct transaction control over the
// pool backing an *eventStore (to hold advisory locks across the
// handler's decision and the resulting append) - something the
// storage-agnostic dcb.EventStore interface deliberately doesn't expose.
//
// Adapted from the teacher's commandExecutor in command.go /
// command_executor.go, which defined the same type twice (a compile
// error in the copied repo); consolidated into one implementation here
// with the corrected 3-return CommandHandler.Handle signature.
type commandExecutor struct {
	store           *eventStore
	persistCommands bool
	metrics         metrics.Sink
	clock           clock.Clock
}

// NewCommandExecutor wraps store's advisory-lock and append machinery
// in a CommandExecutor. store must be a *eventStore returned by Open /
// OpenWithConfig. persistCommands enables the optional commands audit
// table insert after a successful append. sink receives the
// CommandStarted/CommandSucceeded/CommandFailed/IdempotentOperation
// signals spec.md's observability section names; a nil sink defaults to
// metrics.NoOp().
func NewCommandExecutor(store dcb.EventStore, persistCommands bool, sink metrics.Sink) (dcb.CommandExecutor, error) {
	es, ok := store.(*eventStore)
	if !ok {
		return nil, fmt.Errorf("postgres: NewCommandExecutor requires a store opened via postgres.Open")
	}
	if sink == nil {
		sink = metrics.NoOp()
	}
	return &commandExecutor{store: es, persistCommands: persistCommands, metrics: sink, clock: clock.Real()}, nil
}

func (ce *commandExecutor) Execute(ctx context.Context, command dcb.Command, handler dcb.CommandHandler) (dcb.CommandResult, error) {
	return ce.execute(ctx, command, handler, nil)
}

func (ce *commandExecutor) ExecuteWithLocks(ctx context.Context, command dcb.Command, handler dcb.CommandHandler, lockKeys []string) (dcb.CommandResult, error) {
	return ce.execute(ctx, command, handler, lockKeys)
}

func (ce *commandExecutor) execute(ctx context.Context, command dcb.Command, handler dcb.CommandHandler, lockKeys []string) (dcb.CommandResult, error) {
	start := ce.clock.Now()
	ce.metrics.CommandStarted(command.GetType())

	result, err := ce.doExecute(ctx, command, handler, lockKeys)
	if err != nil {
		ce.metrics.CommandFailed(command.GetType(), err.Error())
		return result, err
	}
	if result.Result == dcb.ExecutionIdempotent {
		ce.metrics.IdempotentOperation(command.GetType())
	} else {
		ce.metrics.CommandSucceeded(command.GetType(), ce.clock.Now().Sub(start))
	}
	return result, nil
}

func (ce *commandExecutor) doExecute(ctx context.Context, command dcb.Command, handler dcb.CommandHandler, lockKeys []string) (dcb.CommandResult, error) {
	var lockTx pgx.Tx
	if len(lockKeys) > 0 {
		tx, err := ce.store.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return dcb.CommandResult{}, &dcb.ResourceError{
				EventStoreError: dcb.EventStoreError{Op: "ExecuteWithLocks", Err: fmt.Errorf("begin lock tx: %w", err)},
				Resource:        "database",
			}
		}
		defer tx.Rollback(ctx)

		for _, key := range sortedUnique(lockKeys) {
			if err := acquireNamedLock(ctx, tx, key); err != nil {
				return dcb.CommandResult{}, &dcb.ResourceError{
					EventStoreError: dcb.EventStoreError{Op: "ExecuteWithLocks", Err: fmt.Errorf("lock %q: %w", key, err)},
					Resource:        "database",
				}
			}
		}
		lockTx = tx
	}

	events, condition, err := handler.Handle(ctx, ce.store, command)
	if err != nil {
		return dcb.CommandResult{}, err
	}

	result := dcb.ExecutionCreated
	var cursor dcb.Cursor
	if condition != nil {
		cursor = condition.Cursor()
	}

	if len(events) > 0 {
		result, cursor, err = ce.store.AppendIf(ctx, events, condition)
		if err != nil {
			return dcb.CommandResult{}, err
		}
		if ce.persistCommands && result == dcb.ExecutionCreated {
			if err := insertCommandRow(ctx, ce.store.pool, command, cursor.TransactionID); err != nil {
				return dcb.CommandResult{}, err
			}
		}
	}

	if lockTx != nil {
		if err := lockTx.Commit(ctx); err != nil {
			return dcb.CommandResult{}, &dcb.ResourceError{
				EventStoreError: dcb.EventStoreError{Op: "ExecuteWithLocks", Err: fmt.Errorf("commit lock tx: %w", err)},
				Resource:        "database",
			}
		}
	}

	return dcb.CommandResult{Result: result, Events: events, Cursor: cursor}, nil
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// insertCommandRow writes the optional commands audit row. Metadata is
// stored as JSON; a marshal failure here is an infrastructure error,
// not a validation one, since the command was already handled.
func insertCommandRow(ctx context.Context, pool *pgxpool.Pool, command dcb.Command, transactionID string) error {
	metadata, err := json.Marshal(command.GetMetadata())
	if err != nil {
		return &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "insertCommandRow", Err: fmt.Errorf("marshal metadata: %w", err)},
			Resource:        "database",
		}
	}

	const stmt = `
		INSERT INTO commands (transaction_id, command_type, payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	if _, err := pool.Exec(ctx, stmt, transactionID, command.GetType(), command.GetData(), metadata); err != nil {
		return &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "insertCommandRow", Err: fmt.Errorf("insert: %w", err)},
			Resource:        "database",
		}
	}
	return nil
}
