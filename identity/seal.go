package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/murmur-chat/murmur/internal/errs"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
	scryptKeyLen = 16 // AES-128
	saltSize    = 16
	ivSize      = aes.BlockSize

	pemBlockType = "MURMUR SEALED PRIVATE KEY"
)

// sealPrivateKey PKCS#8-marshals priv, encrypts the DER under an
// scrypt-derived AES-128-CBC key, and PEM-encodes the result with the
// scrypt salt and CBC IV carried as PEM headers. A trailing SHA-256
// checksum of the plaintext DER is appended before encryption: CBC alone
// has no MAC, so the checksum makes a wrong password or a corrupted
// ciphertext fail deterministically with errs.ErrBadPassword instead of
// depending on the padding check or the PKCS#8 parse happening to fail.
func sealPrivateKey(priv *rsa.PrivateKey, password string) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal private key: %w", err)
	}

	checksum := sha256.Sum256(der)
	payload := append(der, checksum[:]...)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("identity: generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("identity: derive key: %w", err)
	}

	padded := pkcs7Pad(payload, aes.BlockSize)

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("identity: generate iv: %w", err)
	}

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: new cipher: %w", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(aesCipher, iv).CryptBlocks(ciphertext, padded)

	pemBlock := &pem.Block{
		Type: pemBlockType,
		Headers: map[string]string{
			"Salt":     hex.EncodeToString(salt),
			"IV":       hex.EncodeToString(iv),
			"Scrypt-N": fmt.Sprintf("%d", scryptN),
			"Scrypt-R": fmt.Sprintf("%d", scryptR),
			"Scrypt-P": fmt.Sprintf("%d", scryptP),
		},
		Bytes: ciphertext,
	}
	return pem.EncodeToMemory(pemBlock), nil
}

// unsealPrivateKey reverses sealPrivateKey, returning errs.ErrBadPassword
// when the checksum does not match (wrong password or corrupt file — the
// construction cannot tell these apart, which matches spec.md §4.D).
func unsealPrivateKey(data []byte, password string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, fmt.Errorf("%w: not a sealed private key", errs.ErrKeystoreUnavailable)
	}

	salt, err := hex.DecodeString(block.Headers["Salt"])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed salt", errs.ErrKeystoreUnavailable)
	}
	iv, err := hex.DecodeString(block.Headers["IV"])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed iv", errs.ErrKeystoreUnavailable)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("identity: derive key: %w", err)
	}

	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: new cipher: %w", err)
	}
	if len(block.Bytes) == 0 || len(block.Bytes)%aes.BlockSize != 0 {
		return nil, errs.ErrBadPassword
	}

	padded := make([]byte, len(block.Bytes))
	cipher.NewCBCDecrypter(cipherBlock, iv).CryptBlocks(padded, block.Bytes)

	payload, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok || len(payload) < sha256.Size {
		return nil, errs.ErrBadPassword
	}

	der := payload[:len(payload)-sha256.Size]
	wantChecksum := payload[len(payload)-sha256.Size:]
	gotChecksum := sha256.Sum256(der)
	if subtle.ConstantTimeCompare(gotChecksum[:], wantChecksum) != 1 {
		return nil, errs.ErrBadPassword
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errs.ErrBadPassword
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", errs.ErrKeystoreUnavailable)
	}
	return priv, nil
}

func encodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

func decodePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("not a PEM-encoded public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return pub, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, false
		}
	}
	return data[:len(data)-padLen], true
}
