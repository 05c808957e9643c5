package checksum

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Strong returns the hex encoded BLAKE2b-256 digest of p.
func Strong(p []byte) string {
	sum := blake2b.Sum256(p)
	return hex.EncodeToString(sum[:])
}
