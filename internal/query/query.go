package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/roach88/offcache/internal/doc"
)

// Query is a filter over a collection plus paging and projection modifiers.
type Query struct {
	Filter map[string]any `json:"filter,omitempty"`
	Sort   map[string]int `json:"sort,omitempty"`
	Fields []string       `json:"fields,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Skip   int            `json:"skip,omitempty"`
}

// New returns an empty query matching every record.
func New() *Query {
	return &Query{Filter: map[string]any{}}
}

// In builds a query matching records whose field is one of values.
func In(field string, values []string) *Query {
	in := make([]any, len(values))
	for i, v := range values {
		in[i] = v
	}
	return &Query{Filter: map[string]any{field: map[string]any{"$in": in}}}
}

// Where adds an equality condition on field.
func (q *Query) Where(field string, value any) *Query {
	if q.Filter == nil {
		q.Filter = map[string]any{}
	}
	q.Filter[field] = value
	return q
}

// Parse decodes a query from JSON. Numbers in the filter stay json.Number.
func Parse(data []byte) (*Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var q Query
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return &q, nil
}

// toMap returns the query as plain JSON-shaped values. The filter is always
// present so New() and a query with a nil filter share a signature.
func (q *Query) toMap() map[string]any {
	filter := q.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	m := map[string]any{"filter": filter}
	if len(q.Sort) > 0 {
		sort := make(map[string]any, len(q.Sort))
		for k, v := range q.Sort {
			sort[k] = v
		}
		m["sort"] = sort
	}
	if len(q.Fields) > 0 {
		m["fields"] = q.Fields
	}
	if q.Limit > 0 {
		m["limit"] = q.Limit
	}
	if q.Skip > 0 {
		m["skip"] = q.Skip
	}
	return m
}

// Canonical returns the canonical JSON of the query alone.
func (q *Query) Canonical() ([]byte, error) {
	return doc.MarshalCanonical(q.toMap())
}

// Signature returns the collection-qualified cache key for the query.
func (q *Query) Signature(collection string) (string, error) {
	data, err := doc.MarshalCanonical(map[string]any{
		"collection": collection,
		"query":      q.toMap(),
	})
	if err != nil {
		return "", fmt.Errorf("query signature: %w", err)
	}
	return string(data), nil
}

// URLValues encodes the query as request parameters for a REST endpoint:
// the filter goes into "query" as canonical JSON, modifiers into their own keys.
func (q *Query) URLValues() (url.Values, error) {
	filter := q.Filter
	if filter == nil {
		filter = map[string]any{}
	}
	f, err := doc.MarshalCanonical(filter)
	if err != nil {
		return nil, fmt.Errorf("encode query filter: %w", err)
	}

	v := url.Values{}
	v.Set("query", string(f))
	if len(q.Sort) > 0 {
		sort := make(map[string]any, len(q.Sort))
		for k, dir := range q.Sort {
			sort[k] = dir
		}
		s, err := doc.MarshalCanonical(sort)
		if err != nil {
			return nil, fmt.Errorf("encode query sort: %w", err)
		}
		v.Set("sort", string(s))
	}
	if len(q.Fields) > 0 {
		fields, err := doc.MarshalCanonical(q.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode query fields: %w", err)
		}
		v.Set("fields", string(fields))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	return v, nil
}
