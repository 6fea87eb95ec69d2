// Package audit keeps high-entropy secrets (session tokens) out of the log
// stream without introducing a secrets-redaction framework: it hashes them
// with blake2b and logs the short hash instead.
package audit

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns an 8-hex-character blake2b-256 digest of secret,
// suitable for correlating log lines about the same session token without
// ever writing the token itself to stdout. Two different tokens collide in
// their fingerprint with negligible probability; a fingerprint never needs
// to be reversed, only compared.
func Fingerprint(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}
