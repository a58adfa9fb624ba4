package protocol

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"testing"

	"github.com/murmur-chat/murmur/crypto/fingerprint"
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

func alwaysKnown(fp string) FingerprintResolver {
	return func(ip string) (string, bool) { return fp, true }
}

// listenOnce starts a TCP listener on an ephemeral port and runs accept in
// a goroutine against the first connection, returning the Result channel
// and the listener's address.
func listenOnce(t *testing.T, accept func(net.Conn) (*Result, error)) (addr string, results chan *Result, failures chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	results = make(chan *Result, 1)
	failures = make(chan error, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			failures <- err
			return
		}
		defer conn.Close()
		result, err := accept(conn)
		if err != nil {
			failures <- err
			return
		}
		results <- result
	}()

	return ln.Addr().String(), results, failures
}

func TestHappySend(t *testing.T) {
	initiator := generateKey(t)
	responder := generateKey(t)

	initiatorFP, err := fingerprint.Of(&initiator.PublicKey)
	require.NoError(t, err)

	addr, results, errCh := listenOnce(t, func(conn net.Conn) (*Result, error) {
		return Accept(conn, responder, alwaysKnown(initiatorFP))
	})

	err = Dial(addr, initiator, &responder.PublicKey, "hello")
	require.NoError(t, err)

	select {
	case result := <-results:
		assert.Equal(t, "hello", result.Message)
		assert.Equal(t, initiatorFP, result.PeerFingerprint)
	case err := <-errCh:
		t.Fatalf("responder failed: %v", err)
	}
}

func TestWrongFingerprintRejected(t *testing.T) {
	initiator := generateKey(t)
	responder := generateKey(t)
	impostor := generateKey(t)

	impostorFP, err := fingerprint.Of(&impostor.PublicKey)
	require.NoError(t, err)

	addr, _, errCh := listenOnce(t, func(conn net.Conn) (*Result, error) {
		return Accept(conn, responder, alwaysKnown(impostorFP))
	})

	// Dial fails once the responder closes the connection after step 1;
	// the rejection under test happens responder-side.
	_ = Dial(addr, initiator, nil, "hello")

	acceptErr := <-errCh
	assert.True(t, errors.Is(acceptErr, errs.ErrPeerUnauthenticated))
}

func TestUnknownContactRejected(t *testing.T) {
	initiator := generateKey(t)
	responder := generateKey(t)

	addr, _, errCh := listenOnce(t, func(conn net.Conn) (*Result, error) {
		return Accept(conn, responder, func(ip string) (string, bool) { return "", false })
	})

	_ = Dial(addr, initiator, nil, "hello")

	acceptErr := <-errCh
	assert.True(t, errors.Is(acceptErr, errs.ErrUnknownContact))
}

func TestTruncatedConnectionAtStepOne(t *testing.T) {
	responder := generateKey(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		_, err = Accept(conn, responder, alwaysKnown("anything"))
		errCh <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()

	acceptErr := <-errCh
	assert.True(t, errors.Is(acceptErr, errs.ErrTransport))
}
