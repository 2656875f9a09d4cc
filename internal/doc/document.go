package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known document fields.
const (
	FieldID           = "_id"
	FieldMetadata     = "_kmd"
	FieldLastModified = "lmt"
)

// Document is an entity record keyed by its "_id" field.
type Document map[string]any

// ID returns the document identifier, or "" when the document carries none.
// Numeric identifiers are returned in their JSON text form.
func (d Document) ID() string {
	switch v := d[FieldID].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// SetID stores id in the "_id" field.
func (d Document) SetID(id string) {
	d[FieldID] = id
}

// LastModified returns the "_kmd.lmt" timestamp if present.
func (d Document) LastModified() (string, bool) {
	kmd, ok := d[FieldMetadata].(map[string]any)
	if !ok {
		return "", false
	}
	lmt, ok := kmd[FieldLastModified].(string)
	if !ok || lmt == "" {
		return "", false
	}
	return lmt, true
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case Document:
		return Document(cloneValue(map[string]any(val)).(map[string]any))
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}

// Encode serializes the document as JSON for storage.
// Keys are emitted in sorted order, which keeps stored rows stable across writes.
func (d Document) Encode() ([]byte, error) {
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses a JSON object into a Document, keeping numbers as json.Number.
func Decode(data []byte) (Document, error) {
	v, err := DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: expected JSON object, got %T", v)
	}
	return Document(obj), nil
}

// DecodeList parses a JSON array of objects.
func DecodeList(data []byte) ([]Document, error) {
	v, err := DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decode documents: expected JSON array, got %T", v)
	}
	docs := make([]Document, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode documents: [%d]: expected JSON object, got %T", i, elem)
		}
		docs = append(docs, Document(obj))
	}
	return docs, nil
}

// DecodeValue parses arbitrary JSON with json.Number for numbers.
// Trailing data after the first value is rejected.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}
