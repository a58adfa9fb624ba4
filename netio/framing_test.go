package netio

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("hello over the wire")

	go func() {
		_ = Send(client, payload)
	}()

	received, err := Receive(server)
	require.NoError(t, err)
	assert.Equal(t, payload, received)
}

func TestSendReceiveZeroLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = Send(client, nil)
	}()

	received, err := Receive(server)
	require.NoError(t, err)
	assert.Empty(t, received)
}

func TestSendReceiveMaxLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := bytes.Repeat([]byte("x"), MaxPayloadSize)

	go func() {
		_ = Send(client, payload)
	}()

	received, err := Receive(server)
	require.NoError(t, err)
	assert.Len(t, received, MaxPayloadSize)
}

func TestSendOverMaxLengthRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := make([]byte, MaxPayloadSize+1)

	err := Send(client, payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestReceiveTruncatedHeaderFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte{0x01})
		client.Close()
	}()

	_, err := Receive(server)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
}

func TestReceiveTruncatedPayloadFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		header := []byte{0x0A, 0x00}
		_, _ = client.Write(header)
		_, _ = client.Write([]byte{0x01, 0x02})
		client.Close()
	}()

	_, err := Receive(server)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTransport))
}
