package dcb

// InputEvent is an event proposed for append. Opaque - construct only
// via NewInputEvent. Position, TransactionID and OccurredAt are assigned
// by the store at commit.
type InputEvent interface {
	isInputEvent()
	GetType() string
	GetTags() []Tag
	GetData() []byte
}

type inputEvent struct {
	eventType string
	tags      []Tag
	data      []byte
}

func (e *inputEvent) isInputEvent()   {}
func (e *inputEvent) GetType() string { return e.eventType }
func (e *inputEvent) GetTags() []Tag  { return e.tags }
func (e *inputEvent) GetData() []byte { return e.data }

// NewInputEvent creates an InputEvent from a type, tag set and payload.
// Validation happens when the event is used in an EventStore operation.
func NewInputEvent(eventType string, tags []Tag, data []byte) InputEvent {
	return &inputEvent{eventType: eventType, tags: tags, data: data}
}

// NewEventBatch is a convenience wrapper for building a []InputEvent
// literal from a variadic argument list.
func NewEventBatch(events ...InputEvent) []InputEvent {
	return events
}

// Command is a request that, once handled, produces the InputEvents to
// append.
type Command interface {
	GetType() string
	GetData() []byte
	GetMetadata() map[string]interface{}
}

type command struct {
	commandType string
	data        []byte
	metadata    map[string]interface{}
}

func (c *command) GetType() string                     { return c.commandType }
func (c *command) GetData() []byte                     { return c.data }
func (c *command) GetMetadata() map[string]interface{} { return c.metadata }

// NewCommand creates a Command from a type, payload and metadata map.
func NewCommand(commandType string, data []byte, metadata map[string]interface{}) Command {
	return &command{commandType: commandType, data: data, metadata: metadata}
}

// AppendCondition guards an append against the Dynamic Consistency
// Boundary: an idempotency clause checked first (if it matches, the
// append is a no-op returning IDEMPOTENT, not an error), then a
// consistency clause checked against everything committed after Cursor
// (if it matches, the append fails CONCURRENT). Opaque - construct only
// via NewAppendCondition / NewAppendConditionWithIdempotency.
type AppendCondition interface {
	isAppendCondition()
	// ConsistencyQuery is the predicate that must have no matches
	// committed after Cursor for the append to proceed.
	ConsistencyQuery() Query
	// Cursor is the floor the consistency query is evaluated from; the
	// zero cursor means "from the beginning of the log."
	Cursor() Cursor
	// WithCursor returns a copy of this condition pinned to a fresh
	// cursor, used by Project to stamp the condition it hands back to
	// the caller with the position it actually read up to.
	WithCursor(c Cursor) AppendCondition
	// IdempotencyQuery is the predicate checked before the consistency
	// query; nil means no idempotency check is performed.
	IdempotencyQuery() Query
}

type appendCondition struct {
	consistencyQuery Query
	cursor           Cursor
	idempotencyQuery Query
}

func (ac *appendCondition) isAppendCondition()      {}
func (ac *appendCondition) ConsistencyQuery() Query { return ac.consistencyQuery }
func (ac *appendCondition) Cursor() Cursor          { return ac.cursor }
func (ac *appendCondition) IdempotencyQuery() Query { return ac.idempotencyQuery }

func (ac *appendCondition) WithCursor(c Cursor) AppendCondition {
	cp := *ac
	cp.cursor = c
	return &cp
}

// NewAppendCondition creates an AppendCondition with only a consistency
// clause: the append fails CONCURRENT if any event matching
// consistencyQuery has committed strictly after ZeroCursor.
func NewAppendCondition(consistencyQuery Query) AppendCondition {
	if consistencyQuery == nil {
		consistencyQuery = NewQueryEmpty()
	}
	return &appendCondition{consistencyQuery: consistencyQuery, cursor: ZeroCursor}
}

// NewAppendConditionWithIdempotency creates an AppendCondition carrying
// both clauses. The idempotency clause is evaluated first and, if it
// matches, the append returns ExecutionIdempotent instead of appending
// or erroring.
func NewAppendConditionWithIdempotency(consistencyQuery, idempotencyQuery Query) AppendCondition {
	ac := NewAppendCondition(consistencyQuery).(*appendCondition)
	ac.idempotencyQuery = idempotencyQuery
	return ac
}

// FailIfExists creates an AppendCondition that fails CONCURRENT if any
// event carries the given tag.
func FailIfExists(key, value string) AppendCondition {
	return NewAppendCondition(NewQueryBuilder().WithTag(key, value).Build())
}

// FailIfEventType creates an AppendCondition that fails CONCURRENT if an
// event of eventType carrying the given tag exists.
func FailIfEventType(eventType, key, value string) AppendCondition {
	return NewAppendCondition(NewQueryBuilder().WithTagAndType(key, value, eventType).Build())
}

// FailIfEventTypes creates an AppendCondition that fails CONCURRENT if
// an event of any of eventTypes carrying the given tag exists.
func FailIfEventTypes(eventTypes []string, key, value string) AppendCondition {
	return NewAppendCondition(NewQueryBuilder().WithTypes(eventTypes...).WithTag(key, value).Build())
}
