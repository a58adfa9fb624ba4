// Package aead implements AES-EAX (spec.md §4.B), the only authenticated
// cipher the session protocol and the contact store use. Nothing in the
// retrieved pack or the wider Go ecosystem ships an EAX implementation —
// DESIGN.md records why this is built directly on crypto/aes and
// crypto/cipher rather than pulled from a library.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/murmur-chat/murmur/internal/errs"
)

const (
	// NonceSize is the EAX nonce length.
	NonceSize = 16
	// TagSize is the EAX authentication tag length.
	TagSize = 16
	keySize = 16
)

// Seal encrypts and authenticates plaintext under a 16-byte key, returning
// nonce(16) || tag(16) || ciphertext(n) exactly as spec.md §4.B requires.
func Seal(key, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aead: generate nonce: %w", err)
	}

	ciphertext, tag, err := seal(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, NonceSize+TagSize+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal, returning errs.ErrAuthFailure if the tag does not
// match or the envelope is too short to contain one.
func Open(key, envelope []byte) ([]byte, error) {
	if len(envelope) < NonceSize+TagSize {
		return nil, errs.ErrAuthFailure
	}

	nonce := envelope[:NonceSize]
	tag := envelope[NonceSize : NonceSize+TagSize]
	ciphertext := envelope[NonceSize+TagSize:]

	plaintext, expectedTag, err := openInternal(key, nonce, ciphertext)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(tag, expectedTag) != 1 {
		return nil, errs.ErrAuthFailure
	}
	return plaintext, nil
}

// seal performs the EAX construction over an already-generated nonce,
// returning ciphertext and the tag separately so Seal can lay them out.
func seal(key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("aead: new cipher: %w", err)
	}

	nonceMac, err := omac(block, 0, nonce)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = ctrCrypt(block, nonceMac, plaintext)

	ciphertextMac, err := omac(block, 2, ciphertext)
	if err != nil {
		return nil, nil, err
	}

	headerMac, err := omac(block, 1, nil)
	if err != nil {
		return nil, nil, err
	}

	tag = xorBytes(xorBytes(nonceMac, headerMac), ciphertextMac)
	return ciphertext, tag, nil
}

// openInternal decrypts and recomputes the expected tag for comparison by
// the caller; it never compares the tag itself so callers can do that in
// constant time.
func openInternal(key, nonce, ciphertext []byte) (plaintext, expectedTag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("aead: new cipher: %w", err)
	}

	nonceMac, err := omac(block, 0, nonce)
	if err != nil {
		return nil, nil, err
	}

	plaintext = ctrCrypt(block, nonceMac, ciphertext)

	ciphertextMac, err := omac(block, 2, ciphertext)
	if err != nil {
		return nil, nil, err
	}

	headerMac, err := omac(block, 1, nil)
	if err != nil {
		return nil, nil, err
	}

	expectedTag = xorBytes(xorBytes(nonceMac, headerMac), ciphertextMac)
	return plaintext, expectedTag, nil
}

// ctrCrypt runs AES-CTR keyed by block with iv as the initial counter
// block; CTR is its own inverse so this serves both encryption and
// decryption.
func ctrCrypt(block cipher.Block, iv, src []byte) []byte {
	dst := make([]byte, len(src))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(dst, src)
	return dst
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
