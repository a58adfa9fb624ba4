package rsaseal

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt(t *testing.T) {
	key := generateKey(t)
	plaintext := []byte("the session key travels inside this envelope")

	ciphertext, err := Encrypt(&key.PublicKey, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	recovered, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)

	ciphertext, err := Encrypt(&key.PublicKey, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(other, ciphertext)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	key := generateKey(t)
	message := []byte("KeyExchanged")

	sig, err := Sign(key, message)
	require.NoError(t, err)

	err = Verify(&key.PublicKey, message, sig)
	assert.NoError(t, err)
}

func TestVerifyTamperedMessageFails(t *testing.T) {
	key := generateKey(t)

	sig, err := Sign(key, []byte("original"))
	require.NoError(t, err)

	err = Verify(&key.PublicKey, []byte("tampered"), sig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSignatureInvalid))
}

func TestVerifyWrongKeyFails(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)

	sig, err := Sign(key, []byte("message"))
	require.NoError(t, err)

	err = Verify(&other.PublicKey, []byte("message"), sig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSignatureInvalid))
}
