package listener

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/murmur-chat/murmur/crypto/fingerprint"
	"github.com/murmur-chat/murmur/protocol"
	"github.com/murmur-chat/murmur/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestServeDeliversMessageEvent(t *testing.T) {
	responderKey := generateKey(t)
	initiatorKey := generateKey(t)

	fp, err := fingerprint.Of(&initiatorKey.PublicKey)
	require.NoError(t, err)

	book := store.NewContactBook()
	book.UpsertContact(&store.Contact{ID: "c1", Name: "Alice", IP: "127.0.0.1", Fingerprint: fp})

	l := New(responderKey, &responderKey.PublicKey, t.TempDir(), book, true)

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx, addr) }()
	waitUntilListening(t, addr)

	require.NoError(t, protocol.Dial(addr, initiatorKey, &responderKey.PublicKey, "hi there"))

	select {
	case event := <-l.Events():
		assert.Equal(t, "hi there", event.Message)
		assert.NoError(t, event.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	<-serveErr
}

func TestServeStopsOnContextCancel(t *testing.T) {
	responderKey := generateKey(t)
	book := store.NewContactBook()
	l := New(responderKey, &responderKey.PublicKey, t.TempDir(), book, true)

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.Serve(ctx, addr) }()
	waitUntilListening(t, addr)

	cancel()

	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func waitUntilListening(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("listener on %s never came up", addr)
}
