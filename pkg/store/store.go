// Package store defines the document-store boundary the ledger writes to and
// reads from, plus the implementations BuildChain ships with.
//
// A collection is an ordered bag of flat JSON records. The canonical ledger,
// the per-category projections and the staged submissions all live behind the
// same interface.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("store: document not found")

// Field names the store reads from records to order them.
const (
	FieldTimestamp   = "timestamp"
	FieldBlockNumber = "blockNumber"
)

// Direction selects the timestamp ordering of a query.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Record is one flat document as written to a collection.
type Record map[string]any

// String returns the string stored under key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int64 returns the integral number stored under key.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Document is a stored record together with its storage-assigned id.
type Document struct {
	ID         string
	Collection string
	Fields     Record
}

// Store is the backing document store.
//
// Append must preserve field values exactly, including nested objects, and
// assign a unique id. QueryOrderedByTimestamp returns documents ordered by
// their "timestamp" field; ties are broken by "blockNumber" and then by
// insertion order. A limit <= 0 returns the whole collection. Update merges
// fields into an existing document and is only meant for staged records.
type Store interface {
	Append(ctx context.Context, collection string, rec Record) (string, error)
	QueryOrderedByTimestamp(ctx context.Context, collection string, dir Direction, limit int) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Update(ctx context.Context, collection, id string, fields Record) error
}

// decodeRecord parses a stored JSON body, keeping numbers as json.Number so
// that values round-trip without float rounding.
func decodeRecord(body []byte) (Record, error) {
	var rec Record
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}
