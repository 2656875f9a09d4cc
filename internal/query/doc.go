// Package query holds the minimal query and aggregation contract the local store
// and the sync engine need.
//
// The local store never executes a query against its records. Queries are only
// used as cache keys (see Signature) and, on the sync delete path, as the filter
// handed to the remote target (see In).
//
// A signature is the RFC 8785 canonical JSON of
//
//	{"collection": <name>, "query": <query>}
//
// so identical query shapes in two different collections never share a cache
// entry, and key order or Unicode normalization in a filter never splits one.
package query
