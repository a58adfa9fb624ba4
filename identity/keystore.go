// Package identity generates, password-seals, and loads the long-term RSA
// keypair that anchors a murmur account (spec.md §4.D).
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/murmur-chat/murmur/internal/logger"
)

const (
	keyBits         = 2048
	privateKeyFile  = "private.pem"
	publicKeyFile   = "public.pem"
	backoffMaxMicro = 2_000_000
)

// KeyPair is the owner's identity: a matched RSA public/private pair held
// in memory for the lifetime of a logged-in session.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// CreateKeyPair generates a fresh 2048-bit RSA keypair.
func CreateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// Paths returns the private and public key file paths under dir.
func Paths(dir string) (privatePath, publicPath string) {
	return filepath.Join(dir, privateKeyFile), filepath.Join(dir, publicKeyFile)
}

// Exists reports whether both key files are present under dir.
func Exists(dir string) bool {
	privatePath, publicPath := Paths(dir)
	_, privErr := os.Stat(privatePath)
	_, pubErr := os.Stat(publicPath)
	return privErr == nil && pubErr == nil
}

// SaveSealed writes public.pem in the clear and private.pem as a
// scrypt+AES-128-CBC sealed PKCS#8 envelope protected by password.
func SaveSealed(dir string, kp *KeyPair, password string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	privatePath, publicPath := Paths(dir)

	pubPEM, err := encodePublicKey(kp.Public)
	if err != nil {
		return err
	}
	if err := os.WriteFile(publicPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	sealed, err := sealPrivateKey(kp.Private, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(privatePath, sealed, 0o600); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}
	return nil
}

// LoadSealed imports both key files, using password as the private key's
// passphrase. It returns errs.ErrNoAccount, errs.ErrKeystoreUnavailable, or
// errs.ErrBadPassword per spec.md §4.D's failure taxonomy.
func LoadSealed(dir, password string) (*KeyPair, error) {
	privatePath, publicPath := Paths(dir)

	pubBytes, err := os.ReadFile(publicPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoAccount
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	privBytes, err := os.ReadFile(privatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoAccount
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	pub, err := decodePublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}

	priv, err := unsealPrivateKey(privBytes, password)
	if err != nil {
		return nil, err
	}

	if priv.PublicKey.E != pub.E || priv.PublicKey.N.Cmp(pub.N) != 0 {
		return nil, fmt.Errorf("%w: private key does not match public key", errs.ErrKeystoreUnavailable)
	}

	return &KeyPair{Public: pub, Private: priv}, nil
}

// BadPasswordBackoff blocks for a random 0-2s delay, the mitigation
// spec.md §4.D prescribes after a failed password attempt.
func BadPasswordBackoff() {
	n, err := rand.Int(rand.Reader, big.NewInt(backoffMaxMicro))
	if err != nil {
		time.Sleep(time.Second)
		return
	}
	time.Sleep(time.Duration(n.Int64()) * time.Microsecond)
}

// Login orchestrates the full flow spec.md §4.D describes: if the key
// files are missing, the caller must create an account by calling create
// with a freshly chosen password; otherwise authenticate repeatedly calls
// authenticate until it returns a keypair or a non-recoverable error.
//
// create is called exactly once, only when no account exists. authenticate
// is called once per attempt; Login applies BadPasswordBackoff and retries
// on errs.ErrBadPassword, and returns immediately on any other error.
func Login(dir string, create func() (*KeyPair, string, error), authenticate func() (string, error)) (*KeyPair, error) {
	if !Exists(dir) {
		logger.Info("no account found, starting account creation", logger.Field{Key: "dir", Value: dir})
		kp, password, err := create()
		if err != nil {
			return nil, err
		}
		if err := SaveSealed(dir, kp, password); err != nil {
			return nil, err
		}
		return kp, nil
	}

	for {
		password, err := authenticate()
		if err != nil {
			return nil, err
		}

		kp, err := LoadSealed(dir, password)
		if err == nil {
			return kp, nil
		}
		if !errors.Is(err, errs.ErrBadPassword) {
			return nil, err
		}

		logger.Warn("bad password, backing off before retry")
		BadPasswordBackoff()
	}
}
