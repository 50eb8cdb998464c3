package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dcbstore/pkg/dcb"
)

// Project reads every event committed after cursor that matches any of
// the projectors' queries, folding it into each projector's state in
// commit order with a single read, and returns an AppendCondition
// pre-built from the combined query pinned to the cursor it actually
// read up to - a caller that wants to append conditioned on "nothing
// relevant to these projectors has happened since I read this state"
// can pass that condition straight to AppendIf.
//
// Adapted from the teacher's Project/projectDecisionModelWithQuery in
// pkg/dcb/projection.go, generalized from its single-query decision
// model to the general projector list dcb.StateProjector already
// carries.
func (es *eventStore) Project(ctx context.Context, projectors []dcb.StateProjector, cursor dcb.Cursor) (map[string]any, dcb.AppendCondition, error) {
	if len(projectors) == 0 {
		return map[string]any{}, dcb.NewAppendCondition(dcb.NewQueryEmpty()).WithCursor(cursor), nil
	}

	combined := dcb.CombineProjectorQueries(projectors)
	sqlQuery, args, err := buildReadQuerySQL(combined, cursor, nil)
	if err != nil {
		return nil, nil, &dcb.EventStoreError{Op: "Project", Err: fmt.Errorf("build SQL: %w", err)}
	}

	states := make(map[string]any, len(projectors))
	for _, p := range projectors {
		states[p.ID] = p.InitialState
	}

	latest := cursor
	err = es.withReadTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlQuery, args...)
		if err != nil {
			return &dcb.EventStoreError{Op: "Project", Err: fmt.Errorf("execute: %w", err)}
		}
		defer rows.Close()

		for rows.Next() {
			var row rowEvent
			if err := rows.Scan(&row.Type, &row.Tags, &row.Data, &row.TransactionID, &row.Position, &row.OccurredAt); err != nil {
				return &dcb.EventStoreError{Op: "Project", Err: fmt.Errorf("scan: %w", err)}
			}
			event := convertRowToEvent(row)
			for _, p := range projectors {
				if dcb.EventMatchesProjector(event, p) {
					states[p.ID] = p.TransitionFn(states[p.ID], event)
				}
			}
			latest = dcb.Cursor{TransactionID: event.TransactionID, Position: event.Position}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	condition := dcb.NewAppendCondition(combined).WithCursor(latest)
	return states, condition, nil
}

// ProjectStream is Project, but the folded state is published after
// every matching event rather than only at the end, together with the
// AppendCondition pinned to that event's cursor. Callers that want a
// single final snapshot should prefer Project; this is for long-running
// subscriptions (the Event Processor Runtime's fetcher does not use it:
// it reads rows directly into a batch slice).
func (es *eventStore) ProjectStream(ctx context.Context, projectors []dcb.StateProjector, cursor dcb.Cursor) (<-chan map[string]any, <-chan dcb.AppendCondition, error) {
	combined := dcb.CombineProjectorQueries(projectors)
	sqlQuery, args, err := buildReadQuerySQL(combined, cursor, nil)
	if err != nil {
		return nil, nil, &dcb.EventStoreError{Op: "ProjectStream", Err: fmt.Errorf("build SQL: %w", err)}
	}

	stateChan := make(chan map[string]any, es.config.StreamBuffer)
	condChan := make(chan dcb.AppendCondition, es.config.StreamBuffer)

	states := make(map[string]any, len(projectors))
	for _, p := range projectors {
		states[p.ID] = p.InitialState
	}

	go func() {
		defer close(stateChan)
		defer close(condChan)

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
			event := convertRowToEvent(row)
			changed := false
			for _, p := range projectors {
				if dcb.EventMatchesProjector(event, p) {
					states[p.ID] = p.TransitionFn(states[p.ID], event)
					changed = true
				}
			}
			if !changed {
				continue
			}

			snapshot := make(map[string]any, len(states))
			for k, v := range states {
				snapshot[k] = v
			}
			latest := dcb.Cursor{TransactionID: event.TransactionID, Position: event.Position}
			condition := dcb.NewAppendCondition(combined).WithCursor(latest)

			select {
			case stateChan <- snapshot:
			case <-ctx.Done():
				return
			}
			select {
			case condChan <- condition:
			case <-ctx.Done():
				return
			}
		}
	}()

	return stateChan, condChan, nil
}
