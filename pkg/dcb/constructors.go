package dcb

import (
	"encoding/json"
	"fmt"
)

// ToJSON marshals v to JSON, panicking on error. Convenience for tests
// and example command handlers where a marshal failure means a
// programmer error, not a runtime condition to handle.
func ToJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal to JSON: %v", err))
	}
	return data
}

// ProjectCounter creates a projector that counts matching events.
func ProjectCounter(id string, eventType string, key, value string) StateProjector {
	return StateProjector{
		ID:           id,
		Query:        NewQueryBuilder().WithTagAndType(key, value, eventType).Build(),
		InitialState: 0,
		TransitionFn: func(state any, event Event) any {
			return state.(int) + 1
		},
	}
}

// ProjectBoolean creates a projector that flips to true once a matching
// event has been seen.
func ProjectBoolean(id string, eventType string, key, value string) StateProjector {
	return StateProjector{
		ID:           id,
		Query:        NewQueryBuilder().WithTagAndType(key, value, eventType).Build(),
		InitialState: false,
		TransitionFn: func(state any, event Event) any {
			return true
		},
	}
}

// ProjectState creates a projector with a caller-supplied initial state
// and transition function over a single (type, tag) query.
func ProjectState(id string, eventType string, key, value string, initialState any, transitionFn func(any, Event) any) StateProjector {
	return StateProjector{
		ID:           id,
		Query:        NewQueryBuilder().WithTagAndType(key, value, eventType).Build(),
		InitialState: initialState,
		TransitionFn: transitionFn,
	}
}

// ProjectStateWithTypes is ProjectState for a query over several event
// types sharing one tag.
func ProjectStateWithTypes(id string, eventTypes []string, key, value string, initialState any, transitionFn func(any, Event) any) StateProjector {
	return StateProjector{
		ID:           id,
		Query:        NewQueryBuilder().WithTypes(eventTypes...).WithTag(key, value).Build(),
		InitialState: initialState,
		TransitionFn: transitionFn,
	}
}

// ProjectStateWithTags is ProjectState for a query over several tags on
// one event type.
func ProjectStateWithTags(id string, eventType string, tags Tags, initialState any, transitionFn func(any, Event) any) StateProjector {
	builder := NewQueryBuilder().WithType(eventType)
	for key, value := range tags {
		builder.WithTag(key, value)
	}
	return StateProjector{
		ID:           id,
		Query:        builder.Build(),
		InitialState: initialState,
		TransitionFn: transitionFn,
	}
}

// EventBuilder provides a fluent interface for constructing an
// InputEvent whose payload is a JSON-marshaled value.
type EventBuilder struct {
	eventType string
	tags      map[string]string
	data      any
}

// NewEvent starts an EventBuilder for the given event type.
func NewEvent(eventType string) *EventBuilder {
	return &EventBuilder{eventType: eventType, tags: make(map[string]string)}
}

func (eb *EventBuilder) WithTag(key, value string) *EventBuilder {
	eb.tags[key] = value
	return eb
}

func (eb *EventBuilder) WithTags(tags map[string]string) *EventBuilder {
	for key, value := range tags {
		eb.tags[key] = value
	}
	return eb
}

func (eb *EventBuilder) WithData(data any) *EventBuilder {
	eb.data = data
	return eb
}

// Build creates the final InputEvent.
func (eb *EventBuilder) Build() InputEvent {
	tags := make([]Tag, 0, len(eb.tags))
	for key, value := range eb.tags {
		tags = append(tags, NewTag(key, value))
	}
	var data []byte
	if eb.data != nil {
		data = ToJSON(eb.data)
	}
	return NewInputEvent(eb.eventType, tags, data)
}

// BatchBuilder provides a fluent interface for assembling an event
// batch.
type BatchBuilder struct {
	events []InputEvent
}

// NewBatch starts a BatchBuilder.
func NewBatch() *BatchBuilder {
	return &BatchBuilder{events: make([]InputEvent, 0)}
}

func (bb *BatchBuilder) AddEvent(event InputEvent) *BatchBuilder {
	bb.events = append(bb.events, event)
	return bb
}

func (bb *BatchBuilder) AddEvents(events ...InputEvent) *BatchBuilder {
	bb.events = append(bb.events, events...)
	return bb
}

func (bb *BatchBuilder) AddEventFromBuilder(builder *EventBuilder) *BatchBuilder {
	bb.events = append(bb.events, builder.Build())
	return bb
}

// Build returns the assembled batch.
func (bb *BatchBuilder) Build() []InputEvent {
	return bb.events
}
