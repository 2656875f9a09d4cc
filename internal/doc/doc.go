// Package doc defines the entity record model shared by every offcache layer.
//
// A Document is an open JSON object. Its identifier lives in the "_id" field and
// an optional last-modified timestamp lives in the "_kmd" metadata object under
// "lmt". Nothing else about a document's shape is assumed.
//
// Documents are decoded with json.Number so integers larger than 2^53 survive a
// round trip through the local store unchanged.
//
// The package also provides RFC 8785 canonical JSON, which is the only
// serialization used to derive cache signatures for queries and aggregations.
// Two semantically identical queries therefore always map to the same cache key
// regardless of key order or Unicode normalization form.
package doc
