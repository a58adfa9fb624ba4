// Package fingerprint computes the deterministic, human-comparable
// identity string for an RSA public key (spec.md §4.C).
package fingerprint

import (
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// groupSize is the number of base32 characters between dashes.
const groupSize = 4

// Of returns the fingerprint of pub: a BLAKE2b-256 digest of the key's
// canonical PKIX DER export, base32-encoded without padding, and grouped
// into dash-separated 4-character blocks. The result is always 63
// characters (51 base32 data characters plus 12 separating dashes),
// matching ^([A-Z2-7]{4}-){12}[A-Z2-7]{3}$.
func Of(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	digest := blake2b.Sum256(der)

	// Standard base32 of a 32-byte digest is always 56 characters: 52
	// data symbols plus 4 "=" padding characters. The source strips the
	// trailing 5 characters of that padded string (the 4 padding
	// characters plus the final, partially-populated data symbol),
	// leaving exactly 51 meaningful base32 symbols.
	encoded := base32.StdEncoding.EncodeToString(digest[:])
	encoded = encoded[:len(encoded)-5]

	var b strings.Builder
	for i := 0; i < len(encoded); i += groupSize {
		end := i + groupSize
		if end > len(encoded) {
			end = len(encoded)
		}
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(encoded[i:end])
	}

	return b.String(), nil
}

// Verify reports whether pub's fingerprint equals fp, using a
// constant-time comparison. The source compared fingerprint strings with
// plain equality; spec.md §4.C and §9 call that out as a defect this
// rewrite fixes.
func Verify(pub *rsa.PublicKey, fp string) (bool, error) {
	actual, err := Of(pub)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(fp)) == 1, nil
}
