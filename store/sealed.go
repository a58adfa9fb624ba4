package store

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/murmur-chat/murmur/crypto/aead"
	"github.com/murmur-chat/murmur/crypto/rsaseal"
	"github.com/murmur-chat/murmur/internal/errs"
)

const (
	contentKeySize = 16
	keyFileName    = "enc.key"
	bodyFileName   = "contacts.json"
)

// Paths returns the content-key and body blob paths under dir.
func Paths(dir string) (keyPath, bodyPath string) {
	return filepath.Join(dir, keyFileName), filepath.Join(dir, bodyFileName)
}

// Load reads the sealed two-blob store under dir and returns the decoded
// ContactBook. If either blob is missing, it returns a fresh empty book (a
// first run). If the blobs exist but cannot be decrypted or parsed, it
// returns errs.ErrStoreCorrupt and a nil book — the caller must not save
// over this without ConfirmOverwrite (spec.md §7, §9).
func Load(dir string, priv *rsa.PrivateKey) (ContactBook, error) {
	keyPath, bodyPath := Paths(dir)

	wrappedKey, keyErr := os.ReadFile(keyPath)
	body, bodyErr := os.ReadFile(bodyPath)

	if os.IsNotExist(keyErr) || os.IsNotExist(bodyErr) {
		return NewContactBook(), nil
	}
	if keyErr != nil || bodyErr != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreCorrupt, firstNonNil(keyErr, bodyErr))
	}

	contentKey, err := rsaseal.Decrypt(priv, wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreCorrupt, err)
	}

	plain, err := aead.Open(contentKey, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreCorrupt, err)
	}

	book, err := unmarshalBook(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreCorrupt, err)
	}
	return book, nil
}

// Save seals book under a freshly generated content key, wraps that key
// under pub, and writes both blobs atomically via temp-file-then-rename.
// book must be non-nil: a nil book means the caller received
// errs.ErrStoreCorrupt from Load and has not gone through ConfirmOverwrite,
// so Save refuses rather than risk destroying an unreadable-but-present
// store (spec.md §7, §9).
func Save(dir string, book ContactBook, pub *rsa.PublicKey) error {
	if book == nil {
		return fmt.Errorf("%w: refusing to save a nil book without confirmation", errs.ErrStoreCorrupt)
	}
	return save(dir, book, pub)
}

func save(dir string, book ContactBook, pub *rsa.PublicKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	contentKey := make([]byte, contentKeySize)
	if _, err := rand.Read(contentKey); err != nil {
		return fmt.Errorf("store: generate content key: %w", err)
	}

	plain, err := marshalBook(book)
	if err != nil {
		return fmt.Errorf("store: marshal book: %w", err)
	}

	sealedBody, err := aead.Seal(contentKey, plain)
	if err != nil {
		return err
	}

	wrappedKey, err := rsaseal.Encrypt(pub, contentKey)
	if err != nil {
		return err
	}

	keyPath, bodyPath := Paths(dir)

	// Write the body blob first and rename it into place, then do the
	// same for the key blob, so neither target file is ever half-written.
	// A crash between the two renames leaves the new body beside the
	// previous key blob; Load then reports errs.ErrStoreCorrupt.
	if err := writeAtomic(bodyPath, sealedBody); err != nil {
		return err
	}
	if err := writeAtomic(keyPath, wrappedKey); err != nil {
		return err
	}
	return nil
}

// ConfirmOverwrite is the explicit opt-in a caller (the ui package) must
// obtain from the user before a present-but-corrupt store is replaced.
// replacement is typically a freshly created empty book, or one recovered
// some other way; it is written unconditionally.
func ConfirmOverwrite(dir string, replacement ContactBook, pub *rsa.PublicKey) error {
	if replacement == nil {
		replacement = NewContactBook()
	}
	return save(dir, replacement, pub)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}
	return nil
}

func firstNonNil(candidates ...error) error {
	for _, e := range candidates {
		if e != nil {
			return e
		}
	}
	return nil
}
