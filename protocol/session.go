// Package protocol implements the one-shot, six-step session exchange
// that authenticates peers by signed session key and transmits one
// signed, encrypted payload (spec.md §4.E).
package protocol

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/murmur-chat/murmur/crypto/aead"
	"github.com/murmur-chat/murmur/crypto/fingerprint"
	"github.com/murmur-chat/murmur/crypto/rsaseal"
	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/murmur-chat/murmur/internal/logger"
	"github.com/murmur-chat/murmur/netio"
)

// Port is the compile-time TCP port spec.md §4.E fixes the protocol to.
const Port = 5300

const (
	sessionKeySize = 16
	// ConnectTimeout bounds protocol.Dial's TCP connect phase.
	ConnectTimeout = 15 * time.Second
	// IdleTimeout is the deadline Dial and Accept set on the connection
	// once, before step 1; it bounds the whole exchange, not each read or
	// write separately.
	IdleTimeout = 30 * time.Second
)

// State is the responder's position in the session state machine.
type State int

const (
	Listening State = iota
	KeyExchanged
	SessionEstablished
	MessageReceived
	Closed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "Listening"
	case KeyExchanged:
		return "KeyExchanged"
	case SessionEstablished:
		return "SessionEstablished"
	case MessageReceived:
		return "MessageReceived"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// FingerprintResolver looks up the expected fingerprint of the contact at
// ip. known is false if no contact is on file, in which case Accept
// returns ErrUnknownContact instead of silently trusting the peer.
type FingerprintResolver func(ip string) (fp string, known bool)

// Result is the outcome of a completed responder session.
type Result struct {
	PeerIP          string
	PeerFingerprint string
	Message         string
}

// Dial is the initiator path: connect to addr, perform the six-step
// exchange, and deliver message authenticated under self.
func Dial(addr string, self *rsa.PrivateKey, peerPub *rsa.PublicKey, message string) error {
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPeerUnreachable, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(IdleTimeout)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	// Step 1: send our public key.
	selfDER, err := x509.MarshalPKIXPublicKey(&self.PublicKey)
	if err != nil {
		return fmt.Errorf("protocol: marshal public key: %w", err)
	}
	if err := netio.Send(conn, selfDER); err != nil {
		return err
	}

	// Step 2: receive the responder's public key.
	peerDER, err := netio.Receive(conn)
	if err != nil {
		return err
	}
	receivedPeerPub, err := x509.ParsePKIXPublicKey(peerDER)
	if err != nil {
		return fmt.Errorf("%w: malformed peer public key", errs.ErrPeerUnauthenticated)
	}
	responderPub, ok := receivedPeerPub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: peer key is not RSA", errs.ErrPeerUnauthenticated)
	}
	if peerPub != nil && !samePublicKey(responderPub, peerPub) {
		return fmt.Errorf("%w: responder key does not match expected contact", errs.ErrPeerUnauthenticated)
	}

	// Step 3: generate and send the session key, wrapped and signed.
	sessionKey := make([]byte, sessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return fmt.Errorf("protocol: generate session key: %w", err)
	}

	wrappedKey, err := rsaseal.Encrypt(responderPub, sessionKey)
	if err != nil {
		return err
	}
	if err := netio.Send(conn, wrappedKey); err != nil {
		return err
	}

	keySig, err := rsaseal.Sign(self, sessionKey)
	if err != nil {
		return err
	}
	sealedKeySig, err := aead.Seal(sessionKey, keySig)
	if err != nil {
		return err
	}
	if err := netio.Send(conn, sealedKeySig); err != nil {
		return err
	}

	// Step 5: send the message, encrypted and signed under the session key.
	sealedMessage, err := aead.Seal(sessionKey, []byte(message))
	if err != nil {
		return err
	}
	if err := netio.Send(conn, sealedMessage); err != nil {
		return err
	}

	messageSig, err := rsaseal.Sign(self, []byte(message))
	if err != nil {
		return err
	}
	sealedMessageSig, err := aead.Seal(sessionKey, messageSig)
	if err != nil {
		return err
	}
	return netio.Send(conn, sealedMessageSig)
}

// Accept is the responder path, given a connection that has already been
// accepted by a listener. self is the responder's keypair; resolve looks
// up the expected fingerprint for the connecting peer.
func Accept(conn net.Conn, self *rsa.PrivateKey, resolve FingerprintResolver) (*Result, error) {
	state := Listening

	if err := conn.SetDeadline(time.Now().Add(IdleTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	peerIP := remoteIP(conn)

	// Step 1: receive the initiator's public key.
	peerDER, err := netio.Receive(conn)
	if err != nil {
		state = Closed
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(peerDER)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("%w: malformed initiator public key", errs.ErrPeerUnauthenticated)
	}
	initiatorPub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		state = Closed
		return nil, fmt.Errorf("%w: initiator key is not RSA", errs.ErrPeerUnauthenticated)
	}

	expectedFP, known := resolve(peerIP)
	if !known {
		state = Closed
		return nil, errs.ErrUnknownContact
	}
	presentedFP, err := fingerprint.Of(initiatorPub)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("protocol: compute fingerprint: %w", err)
	}
	matches, err := fingerprint.Verify(initiatorPub, expectedFP)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("protocol: verify fingerprint: %w", err)
	}
	if !matches {
		state = Closed
		logger.Warn("fingerprint mismatch on incoming session",
			logger.Field{Key: "peer_ip", Value: peerIP},
			logger.Field{Key: "presented_fingerprint", Value: presentedFP},
		)
		return nil, fmt.Errorf("%w: fingerprint does not match known contact", errs.ErrPeerUnauthenticated)
	}

	// Step 2: send our public key.
	selfDER, err := x509.MarshalPKIXPublicKey(&self.PublicKey)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("protocol: marshal public key: %w", err)
	}
	if err := netio.Send(conn, selfDER); err != nil {
		state = Closed
		return nil, err
	}
	state = KeyExchanged

	// Step 3 (receive side): unwrap the session key and verify its signature.
	wrappedKey, err := netio.Receive(conn)
	if err != nil {
		state = Closed
		return nil, err
	}
	sessionKey, err := rsaseal.Decrypt(self, wrappedKey)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("%w: could not unwrap session key: %v", errs.ErrPeerUnauthenticated, err)
	}

	sealedKeySig, err := netio.Receive(conn)
	if err != nil {
		state = Closed
		return nil, err
	}
	keySig, err := aead.Open(sessionKey, sealedKeySig)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnauthenticated, err)
	}
	if err := rsaseal.Verify(initiatorPub, sessionKey, keySig); err != nil {
		state = Closed
		logger.Warn("session key signature invalid", logger.Field{Key: "peer_ip", Value: peerIP})
		return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnauthenticated, err)
	}
	state = SessionEstablished

	// Step 5 (receive side): decrypt and verify the message.
	sealedMessage, err := netio.Receive(conn)
	if err != nil {
		state = Closed
		return nil, err
	}
	message, err := aead.Open(sessionKey, sealedMessage)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnauthenticated, err)
	}

	sealedMessageSig, err := netio.Receive(conn)
	if err != nil {
		state = Closed
		return nil, err
	}
	messageSig, err := aead.Open(sessionKey, sealedMessageSig)
	if err != nil {
		state = Closed
		return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnauthenticated, err)
	}
	if err := rsaseal.Verify(initiatorPub, message, messageSig); err != nil {
		state = Closed
		logger.Warn("message signature invalid", logger.Field{Key: "peer_ip", Value: peerIP})
		return nil, fmt.Errorf("%w: %v", errs.ErrPeerUnauthenticated, err)
	}
	state = MessageReceived
	logger.Debug("session reached MessageReceived", logger.Field{Key: "peer_ip", Value: peerIP}, logger.Field{Key: "state", Value: state.String()})

	return &Result{
		PeerIP:          peerIP,
		PeerFingerprint: presentedFP,
		Message:         string(message),
	}, nil
}

func samePublicKey(a, b *rsa.PublicKey) bool {
	return a.E == b.E && a.N.Cmp(b.N) == 0
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
