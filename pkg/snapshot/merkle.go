package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	leafPrefix = "buildchain:block:leaf:v1\x00"
	nodePrefix = "buildchain:block:node:v1\x00"
)

// MerkleRoot returns the root over block hashes in chain order, or "" for
// no blocks. Leaves and interior nodes are domain separated; an odd node at
// any level is paired with itself.
func MerkleRoot(blockHashes []string) string {
	if len(blockHashes) == 0 {
		return ""
	}

	level := make([][]byte, len(blockHashes))
	for i, h := range blockHashes {
		sum := sha256.Sum256([]byte(leafPrefix + h))
		level[i] = sum[:]
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashNode(left, right))
		}
		level = next
	}

	return "0x" + hex.EncodeToString(level[0])
}

func hashNode(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte(nodePrefix))
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
