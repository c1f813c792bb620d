package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the hex sha256 of content. It is the version token of
// blobs and commits in the local store.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
