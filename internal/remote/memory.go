package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
)

// ErrScripted is returned by a Memory target for a push it was told to fail.
var ErrScripted = errors.New("scripted remote failure")

// Call is one push a Memory target received.
type Call struct {
	Op         string   `json:"op" yaml:"op"`
	Collection string   `json:"collection" yaml:"collection"`
	IDs        []string `json:"ids" yaml:"ids"`
	Failed     bool     `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Memory is an in-memory remote. It stores what it is sent, can be told to
// fail specific saves or deletes, and records every call.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	records    map[string]map[string]doc.Document
	failSave   map[string]bool
	failDelete map[string]bool
	calls      []Call
	stamp      func() string
}

// NewMemory creates an empty in-memory remote.
func NewMemory() *Memory {
	return &Memory{
		records:    make(map[string]map[string]doc.Document),
		failSave:   make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

// FailSave makes saves of the given ids fail.
func (m *Memory) FailSave(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.failSave[id] = true
	}
}

// FailDelete makes deletes on the collection fail.
func (m *Memory) FailDelete(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDelete[collection] = true
}

// Stamp sets a function whose result the remote writes into each saved
// record's last-modified metadata, as a server would.
func (m *Memory) Stamp(fn func() string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamp = fn
}

// Seed stores records without recording a call.
func (m *Memory) Seed(collection string, docs ...doc.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.collection(collection)[d.ID()] = d.Clone()
	}
}

func (m *Memory) collection(name string) map[string]doc.Document {
	c, ok := m.records[name]
	if !ok {
		c = make(map[string]doc.Document)
		m.records[name] = c
	}
	return c
}

// Save stores a copy of d and returns the stored representation.
func (m *Memory) Save(ctx context.Context, collection string, d doc.Document) (doc.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := d.ID()
	if m.failSave[id] {
		m.calls = append(m.calls, Call{Op: "save", Collection: collection, IDs: []string{id}, Failed: true})
		return nil, fmt.Errorf("save %s/%s: %w", collection, id, ErrScripted)
	}

	stored := d.Clone()
	if m.stamp != nil {
		kmd, _ := stored[doc.FieldMetadata].(map[string]any)
		if kmd == nil {
			kmd = map[string]any{}
		}
		kmd[doc.FieldLastModified] = m.stamp()
		stored[doc.FieldMetadata] = kmd
	}
	m.collection(collection)[id] = stored
	m.calls = append(m.calls, Call{Op: "save", Collection: collection, IDs: []string{id}})
	return stored.Clone(), nil
}

// Delete removes records matching q. Only equality and $in conditions are
// understood; anything else matches nothing.
func (m *Memory) Delete(ctx context.Context, collection string, q *query.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	var ids []string
	if in, ok := inValues(q, doc.FieldID); ok {
		ids = in
	} else {
		for id, d := range c {
			if matches(d, q.Filter) {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
	}

	if m.failDelete[collection] {
		m.calls = append(m.calls, Call{Op: "delete", Collection: collection, IDs: ids, Failed: true})
		return fmt.Errorf("delete %s: %w", collection, ErrScripted)
	}
	for _, id := range ids {
		delete(c, id)
	}
	m.calls = append(m.calls, Call{Op: "delete", Collection: collection, IDs: ids})
	return nil
}

// Get returns a stored record.
func (m *Memory) Get(collection, id string) (doc.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[collection][id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// IDs returns the stored ids of a collection, ascending.
func (m *Memory) IDs(collection string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records[collection]))
	for id := range m.records[collection] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Calls returns the calls received so far, in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func inValues(q *query.Query, field string) ([]string, bool) {
	if len(q.Filter) != 1 {
		return nil, false
	}
	cond, ok := q.Filter[field].(map[string]any)
	if !ok || len(cond) != 1 {
		return nil, false
	}
	vals, ok := cond["$in"].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func matches(d doc.Document, filter map[string]any) bool {
	for field, cond := range filter {
		got := d[field]
		if field == doc.FieldID {
			got = d.ID()
		}
		if ops, ok := cond.(map[string]any); ok {
			if vals, ok := ops["$in"].([]any); ok && len(ops) == 1 {
				if !slices.ContainsFunc(vals, func(v any) bool { return fmt.Sprint(v) == fmt.Sprint(got) }) {
					return false
				}
				continue
			}
			return false
		}
		if fmt.Sprint(cond) != fmt.Sprint(got) {
			return false
		}
	}
	return true
}
