package ledger

import "fmt"

// Config names the canonical ledger and fixes its chain parameters. It is
// passed explicitly to every Writer, Verifier and Reconciler.
type Config struct {
	// LedgerName is the canonical ledger collection. It must not collide
	// with any category name.
	LedgerName string

	// GenesisHash is the previous hash of the first block.
	GenesisHash string

	// MaxAppendAttempts bounds how often Append re-reads the tip after
	// losing a sequence claim. Only used with a SequenceGuard.
	MaxAppendAttempts int

	// StrictLinkage makes verification link each block to the recomputed
	// hash of its predecessor instead of the stored one.
	StrictLinkage bool
}

// DefaultConfig returns the standard ledger configuration.
func DefaultConfig() Config {
	return Config{
		LedgerName:        DefaultLedgerName,
		GenesisHash:       GenesisHash,
		MaxAppendAttempts: 3,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if !Category(c.LedgerName).Valid() {
		return fmt.Errorf("%w: ledger name %q is not a valid collection name", ErrInvalidConfig, c.LedgerName)
	}
	if Category(c.LedgerName).Known() || c.LedgerName == SubmissionsCollection {
		return fmt.Errorf("%w: ledger name %q collides with another collection", ErrInvalidConfig, c.LedgerName)
	}
	if !IsWellFormedHash(c.GenesisHash) && !isPrefixedHex(c.GenesisHash, 40) {
		return fmt.Errorf("%w: genesis hash %q is not a prefixed hex digest", ErrInvalidConfig, c.GenesisHash)
	}
	if c.MaxAppendAttempts < 1 {
		return fmt.Errorf("%w: max append attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// VerifyMode names the linkage rule used by a verification.
type VerifyMode string

const (
	// ModeStored links each block to the stored hash of its predecessor.
	ModeStored VerifyMode = "stored"
	// ModeStrict links each block to the recomputed hash of its predecessor.
	ModeStrict VerifyMode = "strict"
)

func (c Config) mode() VerifyMode {
	if c.StrictLinkage {
		return ModeStrict
	}
	return ModeStored
}
