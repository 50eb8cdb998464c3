package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/pkg/dcb"
)

// ApplyFunc projects one event onto a materialized view table inside
// tx. Returning an error aborts the whole batch's transaction so the
// view is never left half-updated for a retried batch.
type ApplyFunc func(ctx context.Context, tx pgx.Tx, event dcb.Event) error

// ViewUpdater is a processor.Handler that applies each event in a batch
// to a materialized view inside one transaction, keyed by event type.
// Events with no registered ApplyFunc are skipped (counted as handled,
// since there's nothing to do for them).
type ViewUpdater struct {
	pool    *pgxpool.Pool
	applyFn map[string]ApplyFunc
}

func NewViewUpdater(pool *pgxpool.Pool) *ViewUpdater {
	return &ViewUpdater{pool: pool, applyFn: make(map[string]ApplyFunc)}
}

// On registers fn as the projection for events of eventType.
func (v *ViewUpdater) On(eventType string, fn ApplyFunc) *ViewUpdater {
	v.applyFn[eventType] = fn
	return v
}

// Handle implements processor.Handler.
func (v *ViewUpdater) Handle(ctx context.Context, processorID string, batch []dcb.Event) (int, error) {
	tx, err := v.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("sink: begin view tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The whole batch is one transaction: a failure partway through
	// must not commit the rows already written by earlier events in
	// this tick, so on any error the entire batch reports zero handled
	// and is retried next tick.
	for _, event := range batch {
		fn, ok := v.applyFn[event.Type]
		if !ok {
			continue
		}
		if err := fn(ctx, tx, event); err != nil {
			return 0, fmt.Errorf("sink: apply %s at position %d: %w", event.Type, event.Position, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("sink: commit view tx: %w", err)
	}
	return len(batch), nil
}
