// Package netio implements the length-prefixed message framing every
// session protocol exchange is built on (spec.md §4.A).
package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/murmur-chat/murmur/internal/errs"
)

// MaxPayloadSize is the largest payload a 2-byte unsigned length header
// can address.
const MaxPayloadSize = 65535

const headerSize = 2

// Send writes a 2-byte little-endian length header followed by payload,
// looping until everything is flushed.
func Send(conn net.Conn, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds max %d", errs.ErrInvalidInput, len(payload), MaxPayloadSize)
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(header, uint16(len(payload)))

	if err := writeAll(conn, header); err != nil {
		return err
	}
	return writeAll(conn, payload)
}

// Receive reads exactly one framed message: a 2-byte header followed by
// exactly that many payload bytes. It never returns a short payload.
func Receive(conn net.Conn) ([]byte, error) {
	header, err := recvAll(conn, headerSize)
	if err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint16(header)
	if length == 0 {
		return []byte{}, nil
	}
	return recvAll(conn, int(length))
}

// recvAll fills a buffer of exactly n bytes from repeated reads, failing
// with errs.ErrTransport if EOF arrives before the buffer is full.
func recvAll(conn net.Conn, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errs.ErrTransport
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	return buf, nil
}

func writeAll(conn net.Conn, data []byte) error {
	written := 0
	for written < len(data) {
		n, err := conn.Write(data[written:])
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}
		written += n
	}
	return nil
}
