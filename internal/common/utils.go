package common

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash computes the SHA256 hash of data and returns it as a hex string.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}
