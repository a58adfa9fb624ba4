// Package listener runs the background TCP accept loop that lets murmur
// receive sessions while the UI's command loop runs concurrently (the
// open question spec.md §9 leaves unresolved). One goroutine per accepted
// connection shares a mutex-guarded contact book with the UI; persistence
// happens while holding that mutex.
package listener

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/murmur-chat/murmur/internal/logger"
	"github.com/murmur-chat/murmur/internal/metrics"
	"github.com/murmur-chat/murmur/protocol"
	"github.com/murmur-chat/murmur/store"
)

// Event is delivered on the listener's event channel after each accepted
// connection finishes, successfully or not, so the UI can print a
// notification without blocking the accept loop.
type Event struct {
	PeerIP  string
	Message string
	Err     error
}

// Listener owns the TCP socket, the shared contact book, and the event
// channel the UI reads from.
type Listener struct {
	self *rsa.PrivateKey

	mu    sync.Mutex
	dir   string
	book  store.ContactBook
	pub   *rsa.PublicKey
	valid bool // false if book came from a store.ErrStoreCorrupt load

	events chan Event
}

// New builds a Listener over an already-loaded contact book. valid must
// be false if book is nil because Load returned ErrStoreCorrupt — the
// listener then refuses to persist until the UI confirms an overwrite via
// ReplaceBook.
func New(self *rsa.PrivateKey, pub *rsa.PublicKey, dir string, book store.ContactBook, valid bool) *Listener {
	return &Listener{
		self:   self,
		dir:    dir,
		book:   book,
		pub:    pub,
		valid:  valid,
		events: make(chan Event, 16),
	}
}

// Events returns the channel the UI should range over for completed
// session notifications.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// ReplaceBook installs a new book (typically store.NewContactBook()) and
// marks the store valid again after a user-confirmed overwrite of a
// corrupt store.
func (l *Listener) ReplaceBook(book store.ContactBook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.book = book
	l.valid = true
}

// Serve accepts connections on addr until ctx is cancelled, spawning one
// goroutine per connection. It returns nil on clean shutdown.
func (l *Listener) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeystoreUnavailable, err)
	}
	defer ln.Close()

	metrics.ListenerActive.Set(1)
	defer metrics.ListenerActive.Set(0)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			l.handle(conn)
		}(conn)
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	result, err := protocol.Accept(conn, l.self, l.resolve)
	metrics.SessionDuration.WithLabelValues("responder").Observe(time.Since(start).Seconds())
	if err != nil {
		peerIP := conn.RemoteAddr().String()
		if host, _, splitErr := net.SplitHostPort(peerIP); splitErr == nil {
			peerIP = host
		}
		outcome := outcomeFor(err)
		metrics.SessionsTotal.WithLabelValues(outcome).Inc()
		if outcome == "unauthenticated" {
			metrics.AuthFailures.Inc()
		}
		l.events <- Event{PeerIP: peerIP, Err: err}
		return
	}

	l.mu.Lock()
	if l.valid {
		contact, ok := l.book.FindByIP(result.PeerIP)
		if ok {
			l.book.AppendMessage(contact.ID, store.Message{Received: true, Contents: result.Message})
			if saveErr := store.Save(l.dir, l.book, l.pub); saveErr != nil {
				logger.ErrorMsg("failed to persist contact store after receiving message", logger.Error(saveErr))
			}
		}
	}
	l.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues("received").Inc()
	metrics.MessagesAppended.WithLabelValues("inbound").Inc()
	l.events <- Event{PeerIP: result.PeerIP, Message: result.Message}
}

func (l *Listener) resolve(ip string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.valid {
		return "", false
	}
	contact, ok := l.book.FindByIP(ip)
	if !ok {
		return "", false
	}
	return contact.Fingerprint, true
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, errs.ErrUnknownContact):
		return "unknown_contact"
	case errors.Is(err, errs.ErrPeerUnauthenticated):
		return "unauthenticated"
	default:
		return "transport_error"
	}
}
