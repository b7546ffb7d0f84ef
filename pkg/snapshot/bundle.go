// Package snapshot exports the canonical ledger as a self-verifying bundle
// and stores it in content-addressed blob storage.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/programmer4yugal/buildchain/pkg/canonicalize"
	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/store"
)

// BundleVersion is the format version written by Export.
const BundleVersion = "1.0.0"

// supportedVersions is the range of bundle formats VerifyBundle can read.
var supportedVersions = mustConstraint("^1")

var (
	ErrUnsupportedVersion = errors.New("snapshot: unsupported bundle version")
	ErrBundleMismatch     = errors.New("snapshot: bundle contents do not match its summary")
)

// Bundle is a point-in-time copy of the ledger with its verification report.
type Bundle struct {
	BundleID    string         `json:"bundleId"`
	Version     string         `json:"version"`
	CreatedAt   string         `json:"createdAt"`
	Ledger      string         `json:"ledger"`
	GenesisHash string         `json:"genesisHash"`
	BlockCount  int            `json:"blockCount"`
	HeadHash    string         `json:"headHash"`
	MerkleRoot  string         `json:"merkleRoot"`
	Blocks      []store.Record `json:"blocks"`
	Report      *ledger.Report `json:"report"`
}

// Exporter reads the ledger and writes bundles to a BlobStore.
type Exporter struct {
	store  store.Store
	cfg    ledger.Config
	blobs  BlobStore
	clock  func() time.Time
	logger *slog.Logger
}

// NewExporter creates an exporter for the ledger described by cfg.
func NewExporter(s store.Store, cfg ledger.Config, blobs BlobStore) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exporter{
		store:  s,
		cfg:    cfg,
		blobs:  blobs,
		clock:  time.Now,
		logger: slog.Default().With("component", "snapshot", "ledger", cfg.LedgerName),
	}, nil
}

// WithClock overrides the bundle creation clock.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export snapshots the ledger. It returns the bundle and its content hash.
// A ledger that fails verification is still exported; the embedded report
// says so.
func (e *Exporter) Export(ctx context.Context) (*Bundle, string, error) {
	docs, err := e.store.QueryOrderedByTimestamp(ctx, e.cfg.LedgerName, store.Ascending, 0)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot: read ledger: %w", err)
	}

	report, err := ledger.VerifyDocuments(docs, e.cfg)
	if err != nil {
		return nil, "", err
	}

	bundle := &Bundle{
		BundleID:    uuid.NewString(),
		Version:     BundleVersion,
		CreatedAt:   ledger.FormatTimestamp(e.clock()),
		Ledger:      e.cfg.LedgerName,
		GenesisHash: e.cfg.GenesisHash,
		BlockCount:  len(docs),
		HeadHash:    report.HeadHash,
		Blocks:      make([]store.Record, 0, len(docs)),
		Report:      report,
	}

	hashes := make([]string, 0, len(docs))
	for _, doc := range docs {
		rec := doc.Fields.Clone()
		rec[ledger.FieldID] = doc.ID
		bundle.Blocks = append(bundle.Blocks, rec)
		hashes = append(hashes, doc.Fields.String(ledger.FieldHash))
	}
	bundle.MerkleRoot = MerkleRoot(hashes)

	data, err := canonicalize.JCS(bundle)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot: encode bundle: %w", err)
	}
	hash, err := e.blobs.Put(ctx, data)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot: store bundle: %w", err)
	}

	e.logger.InfoContext(ctx, "snapshot exported",
		"bundle_id", bundle.BundleID,
		"content_hash", hash,
		"blocks", bundle.BlockCount,
		"valid", report.IsValid,
	)
	return bundle, hash, nil
}

// Load fetches and decodes a bundle by content hash.
func Load(ctx context.Context, blobs BlobStore, hash string) (*Bundle, error) {
	data, err := blobs.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if got := ContentHash(data); got != hash {
		return nil, fmt.Errorf("%w: content hash %s, want %s", ErrBundleMismatch, got, hash)
	}
	return DecodeBundle(data)
}

// DecodeBundle parses a bundle, keeping numbers exact.
func DecodeBundle(data []byte) (*Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("snapshot: decode bundle: %w", err)
	}
	return &b, nil
}

// VerifyBundle re-verifies a bundle offline. It fails when the bundle is
// structurally inconsistent: unsupported version, wrong block count, head
// hash or Merkle root, or an embedded report that disagrees with the
// blocks. The returned report reflects the blocks themselves; a faithful
// bundle of a tampered ledger verifies without error and IsValid false.
func VerifyBundle(b *Bundle, strict bool) (*ledger.Report, error) {
	v, err := semver.NewVersion(b.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, b.Version)
	}
	if !supportedVersions.Check(v) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, b.Version)
	}

	if b.BlockCount != len(b.Blocks) {
		return nil, fmt.Errorf("%w: blockCount %d, %d blocks", ErrBundleMismatch, b.BlockCount, len(b.Blocks))
	}

	docs := make([]store.Document, 0, len(b.Blocks))
	hashes := make([]string, 0, len(b.Blocks))
	for _, rec := range b.Blocks {
		fields := rec.Clone()
		id := fields.String(ledger.FieldID)
		delete(fields, ledger.FieldID)
		docs = append(docs, store.Document{ID: id, Collection: b.Ledger, Fields: fields})
		hashes = append(hashes, fields.String(ledger.FieldHash))
	}

	if root := MerkleRoot(hashes); root != b.MerkleRoot {
		return nil, fmt.Errorf("%w: merkle root %s, recorded %s", ErrBundleMismatch, root, b.MerkleRoot)
	}

	cfg := ledger.Config{
		LedgerName:        b.Ledger,
		GenesisHash:       b.GenesisHash,
		MaxAppendAttempts: 1,
		StrictLinkage:     strict,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleMismatch, err)
	}

	report, err := ledger.VerifyDocuments(docs, cfg)
	if err != nil {
		return nil, err
	}
	if report.HeadHash != b.HeadHash {
		return nil, fmt.Errorf("%w: head hash %s, recorded %s", ErrBundleMismatch, report.HeadHash, b.HeadHash)
	}
	if b.Report != nil && b.Report.Mode == report.Mode && !sameFindings(report, b.Report) {
		return nil, fmt.Errorf("%w: embedded report disagrees with blocks", ErrBundleMismatch)
	}
	return report, nil
}

func sameFindings(a, b *ledger.Report) bool {
	return a.IsValid == b.IsValid &&
		a.TotalBlocks == b.TotalBlocks &&
		len(a.TamperedBlocks) == len(b.TamperedBlocks) &&
		len(a.ChainBreaks) == len(b.ChainBreaks)
}

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}
