package ledger

import "errors"

var (
	// ErrValidation marks a payload rejected before any store call.
	ErrValidation = errors.New("ledger: invalid payload")

	// ErrReservedField marks a payload that sets a storage-boundary field.
	ErrReservedField = errors.New("ledger: reserved field in payload")

	// ErrLedgerWrite wraps a failed write to the canonical ledger. Nothing
	// was committed.
	ErrLedgerWrite = errors.New("ledger: canonical ledger write failed")

	// ErrProjectionWrite wraps a failed projection write after the block was
	// committed to the canonical ledger. Reconcile repairs the projection.
	ErrProjectionWrite = errors.New("ledger: projection write failed")

	// ErrConcurrentAppend is returned when every attempt to claim the next
	// block number lost to another writer.
	ErrConcurrentAppend = errors.New("ledger: concurrent append, retry later")

	// ErrInvalidConfig marks an unusable Config.
	ErrInvalidConfig = errors.New("ledger: invalid config")
)
