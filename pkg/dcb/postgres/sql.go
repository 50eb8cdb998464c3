package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dcbstore/pkg/dcb"
)

// rowEvent mirrors the column order of buildReadQuerySQL's SELECT list.
type rowEvent struct {
	Type          string
	Tags          []string
	Data          []byte
	TransactionID string
	Position      uint64
	OccurredAt    time.Time
}

func convertRowToEvent(row rowEvent) dcb.Event {
	return dcb.Event{
		Type:          row.Type,
		Tags:          dcb.ParseTagsArray(row.Tags),
		Data:          row.Data,
		TransactionID: row.TransactionID,
		Position:      row.Position,
		OccurredAt:    row.OccurredAt,
	}
}

// buildReadQuerySQL compiles a Query plus a cursor floor into
// parameterized SQL: OR across items, AND within an item over the type
// list and tag set, and the cursor predicate
// "(transaction_id = $a AND position > $b) OR (transaction_id > $a)"
// adapted from the teacher's buildReadQuerySQL (itself citing Oskar
// Dudycz's article on this exact comparison rule) - necessary because
// position is allocated from a sequence ahead of commit order, so a
// plain "position > cursor.position" can miss events from a transaction
// that committed after the cursor's transaction but was assigned a
// lower position.
//
// An empty query (no items) compiles to a predicate that matches
// nothing, not to a wildcard - callers that want "all events" use
// dcb.NewQueryAll, which has exactly one item with no type/tag filter.
func buildReadQuerySQL(q dcb.Query, cursor dcb.Cursor, limit *int) (string, []any, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 8)
	argIndex := 1

	items := q.GetItems()
	if len(items) == 0 {
		conditions = append(conditions, "FALSE")
	} else {
		orConditions := make([]string, 0, len(items))
		for _, item := range items {
			andConditions := make([]string, 0, 2)

			if types := item.GetEventTypes(); len(types) > 0 {
				andConditions = append(andConditions, fmt.Sprintf("type = ANY($%d::text[])", argIndex))
				args = append(args, types)
				argIndex++
			}
			if tags := item.GetTags(); len(tags) > 0 {
				andConditions = append(andConditions, fmt.Sprintf("tags @> $%d::text[]", argIndex))
				args = append(args, dcb.TagsToArray(tags))
				argIndex++
			}

			if len(andConditions) == 0 {
				orConditions = append(orConditions, "TRUE")
			} else {
				orConditions = append(orConditions, "("+strings.Join(andConditions, " AND ")+")")
			}
		}
		conditions = append(conditions, "("+strings.Join(orConditions, " OR ")+")")
	}

	if !cursor.IsZero() {
		conditions = append(conditions, fmt.Sprintf(
			"( (transaction_id = $%d AND position > $%d) OR (transaction_id::bigint > $%d::bigint) )",
			argIndex, argIndex+1, argIndex,
		))
		args = append(args, cursor.TransactionID, cursor.Position)
		argIndex += 2
	}

	var sb strings.Builder
	sb.WriteString("SELECT type, tags, data, transaction_id, position, occurred_at FROM events")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY transaction_id::bigint ASC, position ASC")
	if limit != nil {
		sb.WriteString(" LIMIT " + strconv.Itoa(*limit))
	}

	return sb.String(), args, nil
}
