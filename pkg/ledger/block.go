package ledger

import (
	"encoding/json"
	"regexp"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

// Category names the kind of event a block records. It doubles as the name
// of the block's projection collection.
type Category string

const (
	CategoryProjects          Category = "projects"
	CategoryMilestones        Category = "milestones"
	CategoryDefinedMilestones Category = "defined_milestones"
	CategoryMaterials         Category = "materials"
	CategoryAttendance        Category = "attendance"
	CategoryLaborRegistry     Category = "labor_registry"
)

// KnownCategories lists the categories with a typed payload.
var KnownCategories = []Category{
	CategoryProjects,
	CategoryMilestones,
	CategoryDefinedMilestones,
	CategoryMaterials,
	CategoryAttendance,
	CategoryLaborRegistry,
}

const (
	// DefaultLedgerName is the canonical ledger collection.
	DefaultLedgerName = "global_ledger"

	// SubmissionsCollection holds staged milestone submissions.
	SubmissionsCollection = "milestone_submissions"
)

// Storage boundary field names.
const (
	FieldID           = "id"
	FieldHash         = "hash"
	FieldPreviousHash = "previousHash"
	FieldTimestamp    = store.FieldTimestamp
	FieldBlockNumber  = store.FieldBlockNumber
	FieldType         = "type"
)

var reservedFields = map[string]struct{}{
	FieldID:           {},
	FieldHash:         {},
	FieldPreviousHash: {},
	FieldTimestamp:    {},
	FieldBlockNumber:  {},
	FieldType:         {},
}

// IsReservedField reports whether key is owned by the ledger rather than the payload.
func IsReservedField(key string) bool {
	_, ok := reservedFields[key]
	return ok
}

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Valid reports whether c is usable as a category and collection name.
func (c Category) Valid() bool {
	return categoryPattern.MatchString(string(c))
}

// Known reports whether c has a typed payload.
func (c Category) Known() bool {
	for _, k := range KnownCategories {
		if k == c {
			return true
		}
	}
	return false
}

// Block is one hash-linked ledger record.
type Block struct {
	ID             string
	Category       Category
	Fields         map[string]any
	Timestamp      string
	PreviousHash   string
	Hash           string
	SequenceNumber int64
}

// HashInput returns the data the block hash commits to: the payload fields
// plus the category under "type".
func (b *Block) HashInput() map[string]any {
	data := make(map[string]any, len(b.Fields)+1)
	for k, v := range b.Fields {
		data[k] = v
	}
	if b.Category != "" {
		data[FieldType] = string(b.Category)
	}
	return data
}

// Record flattens the block into its stored form.
func (b *Block) Record() store.Record {
	rec := store.Record(b.HashInput())
	rec[FieldHash] = b.Hash
	rec[FieldPreviousHash] = b.PreviousHash
	rec[FieldTimestamp] = b.Timestamp
	rec[FieldBlockNumber] = b.SequenceNumber
	return rec
}

// MarshalJSON renders the stored form plus the id.
func (b *Block) MarshalJSON() ([]byte, error) {
	rec := b.Record()
	if b.ID != "" {
		rec[FieldID] = b.ID
	}
	return json.Marshal(map[string]any(rec))
}

// Label returns a short human-readable description of the block.
func (b *Block) Label() string {
	return labelOf(b.HashInput())
}

func labelOf(fields map[string]any) string {
	for _, key := range []string{"title", "description", FieldType} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return "Unknown Data"
}

// BlockFromDocument rebuilds a Block from a stored ledger or projection document.
func BlockFromDocument(doc store.Document) *Block {
	rec := doc.Fields
	seq, _ := rec.Int64(FieldBlockNumber)
	b := &Block{
		ID:             doc.ID,
		Category:       Category(rec.String(FieldType)),
		Fields:         make(map[string]any, len(rec)),
		Timestamp:      rec.String(FieldTimestamp),
		PreviousHash:   rec.String(FieldPreviousHash),
		Hash:           rec.String(FieldHash),
		SequenceNumber: seq,
	}
	for k, v := range rec {
		if !IsReservedField(k) {
			b.Fields[k] = v
		}
	}
	return b
}
