// Package rsaseal wraps the two RSA operations the session protocol needs:
// OAEP key sealing and PKCS#1 v1.5 signing (spec.md §4.B).
package rsaseal

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"

	"github.com/murmur-chat/murmur/internal/errs"
)

// Encrypt wraps plaintext under pub using RSA-OAEP with SHA-1 as both the
// digest and MGF1 hash. SHA-1 here is the wire-compatibility default the
// source uses, not a recommendation — it is kept for interoperability with
// spec.md §4.B, which calls for "the OAEP default".
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsaseal: encrypt: %w", err)
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsaseal: decrypt: %w", err)
	}
	return plaintext, nil
}

// Sign produces a PKCS#1 v1.5 signature over the SHA-256 digest of message.
func Sign(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsaseal: sign: %w", err)
	}
	return sig, nil
}

// Verify checks a signature produced by Sign. On mismatch it returns
// errs.ErrSignatureInvalid rather than the underlying rsa error, so callers
// can distinguish "bad signature" from transport or encoding failures.
func Verify(pub *rsa.PublicKey, message, sig []byte) error {
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return errs.ErrSignatureInvalid
	}
	return nil
}
