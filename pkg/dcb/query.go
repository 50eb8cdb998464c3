package dcb

import (
	"sort"
	"strings"
)

// Query is a composite read/consistency predicate: items are combined
// with OR, and the type-list and tag-set within one item are combined
// with AND. Opaque - construct only via NewQuery / NewQueryFromItems /
// QueryBuilder.
type Query interface {
	isQuery()
	GetItems() []QueryItem
}

// QueryItem is a single atomic AND-condition: optionally restricted to a
// set of event types, optionally restricted to a set of tags that must
// all be present on a matching event.
type QueryItem interface {
	isQueryItem()
	GetEventTypes() []string
	GetTags() []Tag
}

type query struct {
	items []QueryItem
}

func (q *query) isQuery()             {}
func (q *query) GetItems() []QueryItem { return q.items }

type queryItem struct {
	eventTypes []string
	tags       []Tag
}

func (qi *queryItem) isQueryItem()             {}
func (qi *queryItem) GetEventTypes() []string { return qi.eventTypes }
func (qi *queryItem) GetTags() []Tag          { return qi.tags }

// NewQueryItem creates a QueryItem from explicit type and tag lists.
func NewQueryItem(eventTypes []string, tags []Tag) QueryItem {
	return &queryItem{eventTypes: eventTypes, tags: tags}
}

// NewQuery creates a single-item Query over the given tags and event
// types (OR'd together if more than one item is needed - use
// NewQueryFromItems for that).
func NewQuery(tags []Tag, eventTypes ...string) Query {
	return &query{items: []QueryItem{NewQueryItem(eventTypes, tags)}}
}

// NewQueryFromItems creates a Query whose items are combined with OR.
func NewQueryFromItems(items ...QueryItem) Query {
	return &query{items: items}
}

// NewQueryEmpty creates a Query with no items. Per the Query Compiler's
// edge case, an empty query compiles to a predicate that matches
// nothing - it is the identity element for an idempotency clause that
// should never fire, not a wildcard.
func NewQueryEmpty() Query {
	return &query{items: []QueryItem{}}
}

// NewQueryAll creates a Query that matches every event.
func NewQueryAll() Query {
	return &query{items: []QueryItem{NewQueryItem(nil, nil)}}
}

// QueryBuilder provides a fluent interface for assembling a Query whose
// items are combined with OR and whose per-item conditions are combined
// with AND.
type QueryBuilder struct {
	items       []QueryItem
	currentItem *queryItem
}

// NewQueryBuilder starts a new QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{items: make([]QueryItem, 0), currentItem: &queryItem{}}
}

// AddItem finalizes the current QueryItem (if it has content) and
// starts a new one, to be OR'd with the rest.
func (qb *QueryBuilder) AddItem() *QueryBuilder {
	if len(qb.currentItem.eventTypes) > 0 || len(qb.currentItem.tags) > 0 {
		qb.items = append(qb.items, qb.currentItem)
	}
	qb.currentItem = &queryItem{}
	return qb
}

func (qb *QueryBuilder) WithTag(key, value string) *QueryBuilder {
	qb.currentItem.tags = append(qb.currentItem.tags, NewTag(key, value))
	return qb
}

func (qb *QueryBuilder) WithTags(kv ...string) *QueryBuilder {
	for _, t := range NewTags(kv...) {
		qb.currentItem.tags = append(qb.currentItem.tags, t)
	}
	return qb
}

func (qb *QueryBuilder) WithType(eventType string) *QueryBuilder {
	qb.currentItem.eventTypes = append(qb.currentItem.eventTypes, eventType)
	return qb
}

func (qb *QueryBuilder) WithTypes(eventTypes ...string) *QueryBuilder {
	qb.currentItem.eventTypes = append(qb.currentItem.eventTypes, eventTypes...)
	return qb
}

func (qb *QueryBuilder) WithTagAndType(key, value, eventType string) *QueryBuilder {
	return qb.WithTag(key, value).WithType(eventType)
}

// Build finalizes the builder into a Query.
func (qb *QueryBuilder) Build() Query {
	qb.AddItem()
	if len(qb.items) == 0 {
		return NewQueryEmpty()
	}
	return NewQueryFromItems(qb.items...)
}

// TagsToArray converts tags to the sorted "key:value" string form stored
// in the `events.tags TEXT[]` column.
func TagsToArray(tags []Tag) []string {
	if len(tags) == 0 {
		return []string{}
	}
	result := make([]string, len(tags))
	for i, t := range tags {
		result[i] = t.GetKey() + ":" + t.GetValue()
	}
	sort.Strings(result)
	return result
}

// ParseTagsArray parses the "key:value" TEXT[] storage form back into
// tags.
func ParseTagsArray(arr []string) []Tag {
	if len(arr) == 0 {
		return []Tag{}
	}
	tags := make([]Tag, 0, len(arr))
	for _, item := range arr {
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		tags = append(tags, NewTag(key, parts[1]))
	}
	return tags
}

// TagsToString returns the "key:value" string representation of tags
// without sorting - used for log/error messages where insertion order
// is more readable than sorted order.
func TagsToString(tags []Tag) []string {
	result := make([]string, len(tags))
	for i, t := range tags {
		result[i] = t.GetKey() + ":" + t.GetValue()
	}
	return result
}

// tagsToKey builds a stable grouping key from a tag set, used to merge
// QueryItems that share tags across several projectors.
func tagsToKey(tags []Tag) string {
	if len(tags) == 0 {
		return ""
	}
	pairs := make([]string, len(tags))
	for i, t := range tags {
		pairs[i] = t.GetKey() + ":" + t.GetValue()
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// CombineProjectorQueries merges the queries of several projectors into
// one Query so a single read can feed all of them: QueryItems sharing
// the same tag set have their event types unioned, and if any of them
// has no type restriction the merged item has none either.
func CombineProjectorQueries(projectors []StateProjector) Query {
	tagGroups := make(map[string]*queryItem)
	anyType := make(map[string]bool)
	order := make([]string, 0, len(projectors))

	for _, p := range projectors {
		for _, item := range p.Query.GetItems() {
			key := tagsToKey(item.GetTags())
			if existing, ok := tagGroups[key]; ok {
				if anyType[key] {
					continue
				}
				if len(item.GetEventTypes()) == 0 {
					anyType[key] = true
					existing.eventTypes = nil
					continue
				}
				existing.eventTypes = append(existing.eventTypes, item.GetEventTypes()...)
				continue
			}
			anyType[key] = len(item.GetEventTypes()) == 0
			tagGroups[key] = &queryItem{
				eventTypes: append([]string{}, item.GetEventTypes()...),
				tags:       append([]Tag{}, item.GetTags()...),
			}
			order = append(order, key)
		}
	}

	items := make([]QueryItem, 0, len(order))
	for _, key := range order {
		items = append(items, tagGroups[key])
	}
	return &query{items: items}
}

// EventMatchesProjector reports whether an event satisfies at least one
// QueryItem of a projector's query (OR across items, AND within one
// item over type and tags).
func EventMatchesProjector(event Event, projector StateProjector) bool {
	items := projector.Query.GetItems()
	if len(items) == 0 {
		return false
	}

	eventTags := make(map[string]string, len(event.Tags))
	for _, t := range event.Tags {
		eventTags[t.GetKey()] = t.GetValue()
	}

	for _, item := range items {
		if types := item.GetEventTypes(); len(types) > 0 {
			matched := false
			for _, want := range types {
				if event.Type == want {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}

		allTagsMatch := true
		for _, want := range item.GetTags() {
			if eventTags[want.GetKey()] != want.GetValue() {
				allTagsMatch = false
				break
			}
		}
		if !allTagsMatch {
			continue
		}
		return true
	}
	return false
}
