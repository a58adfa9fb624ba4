// Package ui implements the terminal adapter spec.md §6 specifies as the
// CLI surface: a banner, colored prompts, and the send/list/view/add/quit
// command loop, plus the login/account-creation and unknown-fingerprint
// confirmation flows.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/murmur-chat/murmur/identity"
	"github.com/murmur-chat/murmur/internal/errs"
	"github.com/murmur-chat/murmur/internal/metrics"
	"github.com/murmur-chat/murmur/listener"
	"github.com/murmur-chat/murmur/protocol"
	"github.com/murmur-chat/murmur/store"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	promptColor  = color.New(color.FgCyan, color.Bold)
)

const banner = `
 _ __ ___  _   _ _ __ _ __ ___  _   _ _ __
| '_ ` + "`" + ` _ \| | | | '__| '_ ` + "`" + ` _ \| | | | '__|
| | | | | | |_| | |  | | | | | | |_| | |
|_| |_| |_|\__,_|_|  |_| |_| |_|\__,_|_|

peer-to-peer encrypted messenger
`

// App wires the command loop to the identity, store, and listener layers.
type App struct {
	in  *bufio.Reader
	out io.Writer

	keyDir     string
	contactDir string
	listenAddr string

	self        *identity.KeyPair
	book        store.ContactBook
	bookValid   bool
	listenerRef *listener.Listener
}

// New constructs an App reading commands from in and writing output to out.
func New(in io.Reader, out io.Writer, keyDir, contactDir, listenAddr string) *App {
	return &App{in: bufio.NewReader(in), out: out, keyDir: keyDir, contactDir: contactDir, listenAddr: listenAddr}
}

// Login runs spec.md §4.D's login orchestration: account creation if no
// keys exist, otherwise repeated password prompts with backoff.
func (a *App) Login() error {
	fmt.Fprintln(a.out, banner)

	kp, err := identity.Login(a.keyDir,
		func() (*identity.KeyPair, string, error) {
			promptColor.Fprintln(a.out, "No account found. Let's create one.")
			password, confirmErr := a.promptNewPassword()
			if confirmErr != nil {
				return nil, "", confirmErr
			}
			generated, genErr := identity.CreateKeyPair()
			if genErr != nil {
				return nil, "", genErr
			}
			return generated, password, nil
		},
		func() (string, error) {
			return a.prompt("Password: ")
		},
	)
	if err != nil {
		return err
	}
	a.self = kp
	successColor.Fprintln(a.out, "Logged in.")
	fmt.Fprintf(a.out, "Listening on %s\n", a.listenAddr)
	return nil
}

// LoadStore loads the sealed contact store, reporting (but not failing
// on) a corrupt store per spec.md §7.
func (a *App) LoadStore() error {
	book, err := store.Load(a.contactDir, a.self.Private)
	if err != nil {
		if errors.Is(err, errs.ErrStoreCorrupt) {
			warnColor.Fprintln(a.out, "Contact store is present but unreadable. It will not be overwritten until you confirm.")
			a.book = nil
			a.bookValid = false
			return nil
		}
		return err
	}
	a.book = book
	a.bookValid = true
	return nil
}

// AttachListener wires a background listener so the UI can report
// inbound sessions as they complete.
func (a *App) AttachListener(l *listener.Listener) {
	a.listenerRef = l
}

// Identity returns the logged-in keypair, available after Login succeeds.
func (a *App) Identity() *identity.KeyPair { return a.self }

// Book returns the loaded contact store, or nil if LoadStore found it
// corrupt and awaiting confirmation.
func (a *App) Book() store.ContactBook { return a.book }

// BookValid reports whether Book is safe to persist over.
func (a *App) BookValid() bool { return a.bookValid }

// Run drives the send/list/view/add/quit command loop until ctx is
// cancelled or the user runs quit.
func (a *App) Run(ctx context.Context) error {
	if !a.bookValid {
		confirmed, err := a.promptConfirm("Overwrite the unreadable contact store with a fresh empty one?")
		if err != nil {
			return err
		}
		if confirmed {
			a.book = store.NewContactBook()
			if err := store.ConfirmOverwrite(a.contactDir, a.book, a.self.Public); err != nil {
				return err
			}
			a.bookValid = true
			if a.listenerRef != nil {
				a.listenerRef.ReplaceBook(a.book)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if a.listenerRef != nil {
			a.drainEvents()
		}

		promptColor.Fprint(a.out, "murmur> ")
		line, err := a.prompt("")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit":
			return nil
		case "list":
			a.cmdList()
		case "add":
			a.cmdAdd()
		case "view":
			if len(fields) < 2 {
				errorColor.Fprintln(a.out, "usage: view <contact>")
				continue
			}
			a.cmdView(fields[1])
		case "send":
			if len(fields) < 2 {
				errorColor.Fprintln(a.out, "usage: send <contact>")
				continue
			}
			a.cmdSend(fields[1])
		default:
			errorColor.Fprintf(a.out, "unknown command %q\n", fields[0])
		}
	}
}

func (a *App) drainEvents() {
	for {
		select {
		case event := <-a.listenerRef.Events():
			switch {
			case errors.Is(event.Err, errs.ErrUnknownContact):
				a.cmdAddFromUnknown(event.PeerIP)
			case event.Err != nil:
				errorColor.Fprintf(a.out, "incoming session from %s failed: %v\n", event.PeerIP, event.Err)
			default:
				successColor.Fprintf(a.out, "new message from %s: %s\n", event.PeerIP, event.Message)
			}
		default:
			return
		}
	}
}

// cmdAddFromUnknown handles spec.md §4.E's unknown-peer flow: a session
// arrived from an IP with no contact on file, so protocol.Accept rejected
// it with errs.ErrUnknownContact rather than silently trusting it. Ask the
// user whether to create a contact and confirm its fingerprint out-of-band
// before any future session from this IP can succeed.
func (a *App) cmdAddFromUnknown(peerIP string) {
	warnColor.Fprintf(a.out, "incoming session from unknown peer %s — no contact on file for this address\n", peerIP)
	confirmed, err := a.promptConfirm(fmt.Sprintf("Create a contact for %s now?", peerIP))
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	if !confirmed {
		warnColor.Fprintln(a.out, "ignoring until a contact is added for this peer")
		return
	}

	name, err := a.prompt("Name: ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	fp, err := a.prompt("Fingerprint (confirm out-of-band; incoming sessions are rejected while it is blank): ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}

	contact := &store.Contact{ID: newContactID(), Name: name, IP: peerIP, Fingerprint: fp}
	a.book.UpsertContact(contact)
	if err := store.Save(a.contactDir, a.book, a.self.Public); err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	successColor.Fprintf(a.out, "added %s — retry the send once the peer reconnects\n", name)
}

func (a *App) cmdList() {
	if len(a.book) == 0 {
		fmt.Fprintln(a.out, "no contacts")
		return
	}
	for _, c := range a.book {
		fmt.Fprintf(a.out, "%s  %s  %s\n", c.ID, c.Name, c.IP)
	}
}

func (a *App) cmdAdd() {
	name, err := a.prompt("Name: ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	ip, err := a.prompt("IP: ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	if net.ParseIP(ip) == nil {
		errorColor.Fprintln(a.out, errs.ErrInvalidInput)
		return
	}
	fp, err := a.prompt("Fingerprint (out-of-band; incoming sessions are rejected while it is blank): ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}

	contact := &store.Contact{ID: newContactID(), Name: name, IP: ip, Fingerprint: fp}
	a.book.UpsertContact(contact)
	if err := store.Save(a.contactDir, a.book, a.self.Public); err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	successColor.Fprintf(a.out, "added %s\n", name)
}

func (a *App) cmdView(name string) {
	contact, ok := a.findByName(name)
	if !ok {
		errorColor.Fprintf(a.out, "no such contact %q\n", name)
		return
	}
	for _, m := range contact.Messages {
		direction := "->"
		if m.Received {
			direction = "<-"
		}
		fmt.Fprintf(a.out, "%s %s %s\n", m.Time, direction, m.Contents)
	}
}

func (a *App) cmdSend(name string) {
	contact, ok := a.findByName(name)
	if !ok {
		errorColor.Fprintf(a.out, "no such contact %q\n", name)
		return
	}

	message, err := a.prompt("Message: ")
	if err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}

	addr := fmt.Sprintf("%s:%d", contact.IP, protocol.Port)
	start := time.Now()
	err = protocol.Dial(addr, a.self.Private, nil, message)
	metrics.SessionDuration.WithLabelValues("initiator").Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrPeerUnreachable):
			metrics.SessionsTotal.WithLabelValues("unreachable").Inc()
			errorColor.Fprintln(a.out, "peer unreachable")
		case errors.Is(err, errs.ErrPeerUnauthenticated):
			metrics.SessionsTotal.WithLabelValues("unauthenticated").Inc()
			metrics.AuthFailures.Inc()
			errorColor.Fprintln(a.out, "peer failed authentication")
		default:
			metrics.SessionsTotal.WithLabelValues("transport_error").Inc()
			errorColor.Fprintln(a.out, err)
		}
		return
	}

	metrics.SessionsTotal.WithLabelValues("sent").Inc()
	metrics.MessagesAppended.WithLabelValues("outbound").Inc()
	a.book.AppendMessage(contact.ID, store.Message{Received: false, Contents: message})
	if err := store.Save(a.contactDir, a.book, a.self.Public); err != nil {
		errorColor.Fprintln(a.out, err)
		return
	}
	successColor.Fprintln(a.out, "sent")
}

func (a *App) findByName(name string) (*store.Contact, bool) {
	for _, c := range a.book {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func newContactID() string {
	return uuid.NewString()
}

func (a *App) prompt(label string) (string, error) {
	if label != "" {
		fmt.Fprint(a.out, label)
	}
	line, err := a.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) promptConfirm(question string) (bool, error) {
	warnColor.Fprintf(a.out, "%s [y/N]: ", question)
	answer, err := a.prompt("")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (a *App) promptNewPassword() (string, error) {
	password, err := a.prompt("Choose a password: ")
	if err != nil {
		return "", err
	}
	confirmation, err := a.prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirmation {
		return "", fmt.Errorf("%w: passwords do not match", errs.ErrInvalidInput)
	}
	return password, nil
}
