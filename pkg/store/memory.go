package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memDoc struct {
	id   string
	pos  int
	ts   string
	seq  int64
	body []byte
}

// MemoryStore is an in-process Store. Records are serialized on write and
// decoded on read, so callers never share maps with the store and values
// behave the way they would after a trip through a remote document store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]*memDoc
	next        int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]*memDoc)}
}

func (m *MemoryStore) Append(ctx context.Context, collection string, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	seq, _ := rec.Int64(FieldBlockNumber)
	doc := &memDoc{
		id:   uuid.NewString(),
		pos:  m.next,
		ts:   rec.String(FieldTimestamp),
		seq:  seq,
		body: body,
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return doc.id, nil
}

func (m *MemoryStore) QueryOrderedByTimestamp(ctx context.Context, collection string, dir Direction, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	docs := make([]*memDoc, len(m.collections[collection]))
	copy(docs, m.collections[collection])
	m.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool {
		if dir == Descending {
			return lessDoc(docs[j], docs[i])
		}
		return lessDoc(docs[i], docs[j])
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeRecord(d.body)
		if err != nil {
			return nil, fmt.Errorf("store: decode %s/%s: %w", collection, d.id, err)
		}
		out = append(out, Document{ID: d.id, Collection: collection, Fields: rec})
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.find(collection, id)
	if d == nil {
		return nil, ErrNotFound
	}
	rec, err := decodeRecord(d.body)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
	}
	return &Document{ID: id, Collection: collection, Fields: rec}, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.find(collection, id)
	if d == nil {
		return ErrNotFound
	}
	rec, err := decodeRecord(d.body)
	if err != nil {
		return fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		rec[k] = v
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	d.body = body
	d.ts = rec.String(FieldTimestamp)
	d.seq, _ = rec.Int64(FieldBlockNumber)
	return nil
}

// Len reports the number of documents in a collection.
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *MemoryStore) find(collection, id string) *memDoc {
	for _, d := range m.collections[collection] {
		if d.id == id {
			return d
		}
	}
	return nil
}

func lessDoc(a, b *memDoc) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.pos < b.pos
}
