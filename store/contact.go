// Package store implements the sealed at-rest contact and message
// database (spec.md §3, §4.F): a ContactBook encrypted under a random
// content key that is itself wrapped under the owner's RSA key.
package store

import (
	"bytes"
	"encoding/json"
)

// Contact is one address-book entry.
type Contact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	Fingerprint string    `json:"fingerprint"`
	Messages    []Message `json:"messages"`
}

// Message is one conversation entry, appended in local wall-clock order
// and never mutated afterward.
type Message struct {
	Time     string
	Received bool
	Contents string
}

// MarshalJSON always writes the corrected "received" field name,
// migrating any previously-persisted "recieved" spelling forward on the
// next save (spec.md §9, typo compatibility).
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Time     string `json:"time"`
		Received bool   `json:"received"`
		Contents string `json:"contents"`
	}
	return json.Marshal(wire{Time: m.Time, Received: m.Received, Contents: m.Contents})
}

// UnmarshalJSON accepts both "received" and the source's "recieved" (sic)
// spelling, preferring "received" when both are present.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Time     string `json:"time"`
		Received *bool  `json:"received"`
		Recieved *bool  `json:"recieved"`
		Contents string `json:"contents"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	m.Time = wire.Time
	m.Contents = wire.Contents
	switch {
	case wire.Received != nil:
		m.Received = *wire.Received
	case wire.Recieved != nil:
		m.Received = *wire.Recieved
	}
	return nil
}

// ContactBook maps contact ID to Contact. Iteration order is not
// semantically meaningful.
type ContactBook map[string]*Contact

// NewContactBook returns an empty book.
func NewContactBook() ContactBook {
	return make(ContactBook)
}

// UpsertContact inserts or replaces a contact by ID. Pure in-memory;
// callers must call Save explicitly to persist.
func (b ContactBook) UpsertContact(c *Contact) {
	b[c.ID] = c
}

// AppendMessage appends msg to the named contact's history. Pure
// in-memory; callers must call Save explicitly to persist.
func (b ContactBook) AppendMessage(contactID string, msg Message) bool {
	c, ok := b[contactID]
	if !ok {
		return false
	}
	c.Messages = append(c.Messages, msg)
	return true
}

// FindByIP returns the first contact whose IP matches ip, if any.
func (b ContactBook) FindByIP(ip string) (*Contact, bool) {
	for _, c := range b {
		if c.IP == ip {
			return c, true
		}
	}
	return nil, false
}

func marshalBook(b ContactBook) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalBook(data []byte) (ContactBook, error) {
	var b ContactBook
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if b == nil {
		b = NewContactBook()
	}
	return b, nil
}
