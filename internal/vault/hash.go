package vault

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// NormalizeBody cleans note content for hashing: lowercased, trimmed, with
// line endings normalized. Two notes that differ only in casing or trailing
// whitespace hash identically, which is what orphan matching wants.
func NormalizeBody(body string) string {
	b := strings.ToLower(body)
	b = strings.ReplaceAll(b, "\r\n", "\n")
	return strings.TrimSpace(b)
}

// HashBody returns the SHA-256 of the normalized body as a hex string.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(NormalizeBody(body)))
	return fmt.Sprintf("%x", sum)
}
