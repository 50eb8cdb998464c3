package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dcbstore/pkg/dcb"
)

// Fetcher is the Event Fetcher of spec §4.8: fetchEvents(processorId,
// lastPosition, batchSize) returns events with position > lastPosition,
// ordered ascending, up to batchSize, filtered by the processor's
// configured event types/tags.
//
// This deliberately does NOT go through the Query Compiler's
// transaction-aware cursor predicate (buildReadQuerySQL in
// pkg/dcb/postgres/sql.go) - spec §4.8/§9 define the Progress Store's
// bookkeeping as a bare position integer, not a (transaction_id,
// position) cursor, so the comparison here is the plain "position >
// lastPosition" the spec names, with the same read-replica caveat it
// calls out.
type Fetcher struct {
	pool *pgxpool.Pool
}

func NewFetcher(pool *pgxpool.Pool) *Fetcher {
	return &Fetcher{pool: pool}
}

type fetchedEvent struct {
	Type       string
	Tags       []string
	Data       []byte
	TxID       string
	Position   uint64
	OccurredAt time.Time
}

func (f *Fetcher) Fetch(ctx context.Context, cfg Config, lastPosition uint64) ([]dcb.Event, error) {
	conditions := []string{"position > $1"}
	args := []any{lastPosition}
	argIndex := 2

	if len(cfg.EventTypes) > 0 {
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d::text[])", argIndex))
		args = append(args, cfg.EventTypes)
		argIndex++
	}
	if len(cfg.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags @> $%d::text[]", argIndex))
		args = append(args, dcb.TagsToArray(cfg.Tags))
		argIndex++
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	args = append(args, batchSize)

	sqlQuery := "SELECT type, tags, data, transaction_id, position, occurred_at FROM events WHERE " +
		strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY position ASC LIMIT $%d", argIndex)

	rows, err := f.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, &dcb.ResourceError{
			EventStoreError: dcb.EventStoreError{Op: "Fetch", Err: fmt.Errorf("query: %w", err)},
			Resource:        "database",
		}
	}
	defer rows.Close()

	var events []dcb.Event
	for rows.Next() {
		var row fetchedEvent
		if err := rows.Scan(&row.Type, &row.Tags, &row.Data, &row.TxID, &row.Position, &row.OccurredAt); err != nil {
			return nil, &dcb.ResourceError{
				EventStoreError: dcb.EventStoreError{Op: "Fetch", Err: fmt.Errorf("scan: %w", err)},
				Resource:        "database",
			}
		}
		events = append(events, dcb.Event{
			Type:          row.Type,
			Tags:          dcb.ParseTagsArray(row.Tags),
			Data:          row.Data,
			TransactionID: row.TxID,
			Position:      row.Position,
			OccurredAt:    row.OccurredAt,
		})
	}
	return events, rows.Err()
}
