package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/offcache/internal/doc"
)

// Aggregation is a group-by request: records matching Condition are grouped by
// the Key fields and folded with Reduce starting from Initial.
type Aggregation struct {
	Key       map[string]bool `json:"key,omitempty"`
	Initial   map[string]any  `json:"initial,omitempty"`
	Reduce    string          `json:"reduce"`
	Condition map[string]any  `json:"condition,omitempty"`
}

// ParseAggregation decodes an aggregation from JSON.
func ParseAggregation(data []byte) (*Aggregation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var a Aggregation
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("parse aggregation: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("parse aggregation: %w", err)
	}
	return &a, nil
}

func (a *Aggregation) toMap() map[string]any {
	key := make(map[string]any, len(a.Key))
	for k, v := range a.Key {
		key[k] = v
	}
	initial := a.Initial
	if initial == nil {
		initial = map[string]any{}
	}
	condition := a.Condition
	if condition == nil {
		condition = map[string]any{}
	}
	return map[string]any{
		"key":       key,
		"initial":   initial,
		"reduce":    a.Reduce,
		"condition": condition,
	}
}

// Signature returns the collection-qualified cache key for the aggregation.
func (a *Aggregation) Signature(collection string) (string, error) {
	data, err := doc.MarshalCanonical(map[string]any{
		"collection":  collection,
		"aggregation": a.toMap(),
	})
	if err != nil {
		return "", fmt.Errorf("aggregation signature: %w", err)
	}
	return string(data), nil
}
