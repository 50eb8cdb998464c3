package dcb

import (
	"encoding/json"
	"fmt"
)

// ValidateQueryTags checks that every tag and event type named in a
// query is non-empty. An empty query (matches nothing, see
// NewQueryEmpty) is valid.
func ValidateQueryTags(q Query) error {
	for itemIndex, item := range q.GetItems() {
		for i, t := range item.GetTags() {
			if t.GetKey() == "" {
				return &ValidationError{
					EventStoreError: EventStoreError{Op: "ValidateQueryTags", Err: fmt.Errorf("empty tag key in item %d", itemIndex)},
					Field:           fmt.Sprintf("item[%d].tag[%d].key", itemIndex, i),
				}
			}
			if t.GetValue() == "" {
				return &ValidationError{
					EventStoreError: EventStoreError{Op: "ValidateQueryTags", Err: fmt.Errorf("empty value for key %s in tag %d of item %d", t.GetKey(), i, itemIndex)},
					Field:           fmt.Sprintf("item[%d].tag[%d].value", itemIndex, i),
					Value:           t.GetKey(),
				}
			}
		}
		for i, eventType := range item.GetEventTypes() {
			if eventType == "" {
				return &ValidationError{
					EventStoreError: EventStoreError{Op: "ValidateQueryTags", Err: fmt.Errorf("empty event type at index %d of item %d", i, itemIndex)},
					Field:           fmt.Sprintf("item[%d].eventTypes[%d]", itemIndex, i),
				}
			}
		}
	}
	return nil
}

// ValidateEvent checks that a single proposed event has a type, at
// least one non-empty tag, no duplicate tag keys, and JSON-valid data.
func ValidateEvent(e InputEvent, index int) error {
	if e.GetType() == "" {
		return &ValidationError{
			EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("empty type in event %d", index)},
			Field:           "type",
			Value:           fmt.Sprintf("event[%d]", index),
		}
	}
	if len(e.GetTags()) == 0 {
		return &ValidationError{
			EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("empty tags in event %d", index)},
			Field:           "tags",
			Value:           fmt.Sprintf("event[%d]", index),
		}
	}

	seen := make(map[string]bool, len(e.GetTags()))
	for j, t := range e.GetTags() {
		if t.GetKey() == "" {
			return &ValidationError{
				EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("empty tag key in event %d", index)},
				Field:           fmt.Sprintf("event[%d].tag[%d].key", index, j),
			}
		}
		if t.GetValue() == "" {
			return &ValidationError{
				EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("empty value for key %s in tag %d of event %d", t.GetKey(), j, index)},
				Field:           fmt.Sprintf("event[%d].tag[%d].value", index, j),
				Value:           t.GetKey(),
			}
		}
		if seen[t.GetKey()] {
			return &ValidationError{
				EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("duplicate tag key %s in event %d", t.GetKey(), index)},
				Field:           fmt.Sprintf("event[%d].tag[%d].key", index, j),
				Value:           t.GetKey(),
			}
		}
		seen[t.GetKey()] = true
	}

	if data := e.GetData(); len(data) > 0 && !json.Valid(data) {
		return &ValidationError{
			EventStoreError: EventStoreError{Op: "ValidateEvent", Err: fmt.Errorf("invalid JSON data in event %d", index)},
			Field:           "data",
			Value:           fmt.Sprintf("event[%d]", index),
		}
	}
	return nil
}

// ValidateBatchSize checks a proposed event batch against the store's
// configured maximum.
func ValidateBatchSize(events []InputEvent, maxBatchSize int, operation string) error {
	if len(events) > maxBatchSize {
		return &ValidationError{
			EventStoreError: EventStoreError{Op: operation, Err: fmt.Errorf("batch size %d exceeds maximum %d", len(events), maxBatchSize)},
			Field:           "batchSize",
			Value:           fmt.Sprintf("%d", len(events)),
		}
	}
	return nil
}

// ValidateEvents validates every event in a batch in order, returning
// the first error encountered.
func ValidateEvents(events []InputEvent, maxBatchSize int) error {
	if err := ValidateBatchSize(events, maxBatchSize, "ValidateEvents"); err != nil {
		return err
	}
	for i, event := range events {
		if err := ValidateEvent(event, i); err != nil {
			return err
		}
	}
	return nil
}
