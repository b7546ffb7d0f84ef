package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/programmer4yugal/buildchain/pkg/canonicalize"
)

const (
	// HashPrefix marks every block hash.
	HashPrefix = "0x"

	// GenesisHash is the previous hash of the first block: the prefix
	// followed by one zero per hex digit of a SHA-256 digest.
	GenesisHash = HashPrefix + "0000000000000000000000000000000000000000000000000000000000000000"

	// LegacyGenesisHash is the 20-byte sentinel used by chains created with
	// the browser client. Configure it as the genesis hash to verify them.
	LegacyGenesisHash = HashPrefix + "0000000000000000000000000000000000000000"

	// TimestampLayout is the stored block timestamp format, UTC with
	// millisecond precision. Lexical order equals chronological order.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// ComputeHash returns the block hash for data chained to previousHash at
// timestamp: SHA-256 over the canonical JSON of
// {"data": data, "previousHash": previousHash, "timestamp": timestamp}.
func ComputeHash(data map[string]any, previousHash, timestamp string) (string, error) {
	envelope := map[string]any{
		"data":         data,
		"previousHash": previousHash,
		"timestamp":    timestamp,
	}
	b, err := canonicalize.JCS(envelope)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize block: %w", err)
	}
	return HashPrefix + canonicalize.HashBytes(b), nil
}

// IsWellFormedHash reports whether s is a prefixed, lowercase SHA-256 hex digest.
func IsWellFormedHash(s string) bool {
	return isPrefixedHex(s, 64)
}

func isPrefixedHex(s string, digits int) bool {
	if !strings.HasPrefix(s, HashPrefix) || len(s) != len(HashPrefix)+digits {
		return false
	}
	for _, c := range s[len(HashPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored block timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
