package chunker

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash is the hex SHA-256 of the exact chunk text.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
