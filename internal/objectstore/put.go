package objectstore

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/query"
	"github.com/roach88/offcache/internal/store"
)

// PutKind selects what a Put writes.
type PutKind string

const (
	// PutAggregation caches a raw aggregation result. Key is an aggregation
	// in JSON.
	PutAggregation PutKind = "aggregation"

	// PutQuery refreshes one record. Key is the record id; null data evicts
	// the record.
	PutQuery PutKind = "query"

	// PutQueryWithQuery caches a query result. Key is a query in JSON and data
	// the array of result records; null data evicts the cache entry.
	PutQueryWithQuery PutKind = "queryWithQuery"
)

// ParsePutKind validates a kind name.
func ParsePutKind(s string) (PutKind, error) {
	switch k := PutKind(s); k {
	case PutAggregation, PutQuery, PutQueryWithQuery:
		return k, nil
	default:
		return "", store.InvalidArgument("unknown put kind %q", s)
	}
}

// Put dispatches a JSON-encoded put to the aggregation cache, the query cache,
// or the record refresh path.
func (s *Store) Put(ctx context.Context, kind PutKind, collection, key string, data json.RawMessage) error {
	evict := isNull(data)

	switch kind {
	case PutAggregation:
		a, err := query.ParseAggregation([]byte(key))
		if err != nil {
			return store.InvalidArgument("%v", err)
		}
		return s.PutAggregation(ctx, collection, a, data)

	case PutQuery:
		if evict {
			return s.PutEntity(ctx, collection, key, nil)
		}
		d, err := doc.Decode(data)
		if err != nil {
			return store.InvalidArgument("%v", err)
		}
		return s.PutEntity(ctx, collection, key, d)

	case PutQueryWithQuery:
		q, err := query.Parse([]byte(key))
		if err != nil {
			return store.InvalidArgument("%v", err)
		}
		if evict {
			return s.PutQuery(ctx, collection, q, nil)
		}
		docs, err := doc.DecodeList(data)
		if err != nil {
			return store.InvalidArgument("%v", err)
		}
		return s.PutQuery(ctx, collection, q, docs)

	default:
		return store.InvalidArgument("unknown put kind %q", kind)
	}
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
