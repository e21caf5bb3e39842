package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashPII returns the lowercase hex SHA-256 digest of a normalized PII value.
// Normalization is trim + lowercase, exactly as the Conversions API expects
// before hashing. Empty input returns "" so absent fields can be omitted.
func HashPII(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	return digest(value)
}

// HashPhone hashes a phone number after stripping every non-digit character.
// Empty or digit-less input returns "".
func HashPhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return digest(b.String())
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
