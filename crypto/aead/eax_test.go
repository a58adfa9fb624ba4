package aead

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("hello from the initiator")

	envelope, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.Len(t, envelope, NonceSize+TagSize+len(plaintext))

	recovered, err := Open(key, envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestSealEmptyPlaintext(t *testing.T) {
	key := randomKey(t)

	envelope, err := Seal(key, nil)
	require.NoError(t, err)
	assert.Len(t, envelope, NonceSize+TagSize)

	recovered, err := Open(key, envelope)
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("same message twice")

	a, err := Seal(key, plaintext)
	require.NoError(t, err)
	b, err := Seal(key, plaintext)
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestOpenTamperedTagFails(t *testing.T) {
	key := randomKey(t)
	envelope, err := Seal(key, []byte("payload"))
	require.NoError(t, err)

	envelope[NonceSize] ^= 0x01

	_, err = Open(key, envelope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthFailure))
}

func TestOpenTamperedCiphertextFails(t *testing.T) {
	key := randomKey(t)
	envelope, err := Seal(key, []byte("payload"))
	require.NoError(t, err)

	envelope[len(envelope)-1] ^= 0x01

	_, err = Open(key, envelope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthFailure))
}

func TestOpenWrongKeyFails(t *testing.T) {
	key := randomKey(t)
	other := randomKey(t)
	envelope, err := Seal(key, []byte("payload"))
	require.NoError(t, err)

	_, err = Open(other, envelope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthFailure))
}

func TestOpenTruncatedEnvelopeFails(t *testing.T) {
	key := randomKey(t)

	_, err := Open(key, make([]byte, NonceSize+TagSize-1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthFailure))
}

func TestSealMultiBlockPlaintext(t *testing.T) {
	key := randomKey(t)
	plaintext := bytes.Repeat([]byte("A"), 1000)

	envelope, err := Seal(key, plaintext)
	require.NoError(t, err)

	recovered, err := Open(key, envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}
